package proofstore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
)

func proof(payload byte, slot uint64) *externalapi.FinalityProof {
	tx := &externalapi.DomainTransaction{
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID{1}},
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: 1}},
		Payload: []byte{payload},
	}
	return &externalapi.FinalityProof{
		Transaction: tx,
		Slot:        slot,
		Votes: []*externalapi.SignedVote{{
			TransactionID: consensushashing.TransactionID(tx),
			Slot:          slot,
			VoterWeight:   1,
			Signature:     []byte{1},
		}},
	}
}

func TestProofStore(t *testing.T) {
	db := testutils.OpenTestDatabase(t)
	store, err := New(db, 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	first := proof(1, 5)
	firstID := consensushashing.TransactionID(first.Transaction)
	err = store.PutProof(first)
	if err != nil {
		t.Fatalf("PutProof: %+v", err)
	}
	// Write-once: a later proof for the same transaction is ignored.
	err = store.PutProof(proof(1, 6))
	if err != nil {
		t.Fatalf("PutProof: %+v", err)
	}
	second := proof(2, 5)
	secondID := consensushashing.TransactionID(second.Transaction)
	err = store.PutProof(second)
	if err != nil {
		t.Fatalf("PutProof: %+v", err)
	}

	reopened, err := New(db, 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	stored, ok, err := reopened.Proof(firstID)
	if err != nil || !ok {
		t.Fatalf("Proof: ok=%t err=%+v", ok, err)
	}
	if stored.Slot != 5 {
		t.Fatalf("expected the first proof to be kept, got slot %d", stored.Slot)
	}

	unarchived, err := reopened.Unarchived()
	if err != nil {
		t.Fatalf("Unarchived: %+v", err)
	}
	if len(unarchived) != 2 {
		t.Fatalf("expected 2 unarchived proofs, got %d", len(unarchived))
	}

	err = reopened.MarkArchived([]externalapi.DomainTransactionID{secondID}, 3)
	if err != nil {
		t.Fatalf("MarkArchived: %+v", err)
	}
	unarchived, err = reopened.Unarchived()
	if err != nil {
		t.Fatalf("Unarchived: %+v", err)
	}
	if len(unarchived) != 1 || unarchived[0] != firstID {
		t.Fatalf("expected only %s to be unarchived, got %v", firstID, unarchived)
	}
	height, ok, err := reopened.ArchivedHeight(secondID)
	if err != nil || !ok || height != 3 {
		t.Fatalf("ArchivedHeight: height=%d ok=%t err=%+v", height, ok, err)
	}
}

func TestForEachProof(t *testing.T) {
	db := testutils.OpenTestDatabase(t)
	store, err := New(db, 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	stored := map[externalapi.DomainTransactionID]bool{}
	for payload := byte(1); payload <= 3; payload++ {
		p := proof(payload, 5)
		err = store.PutProof(p)
		if err != nil {
			t.Fatalf("PutProof: %+v", err)
		}
		stored[consensushashing.TransactionID(p.Transaction)] = false
	}
	err = store.MarkArchived([]externalapi.DomainTransactionID{consensushashing.TransactionID(proof(2, 5).Transaction)}, 1)
	if err != nil {
		t.Fatalf("MarkArchived: %+v", err)
	}

	reopened, err := New(db, 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	var previous *externalapi.DomainTransactionID
	err = reopened.ForEachProof(func(p *externalapi.FinalityProof) error {
		transactionID := consensushashing.TransactionID(p.Transaction)
		seen, ok := stored[transactionID]
		if !ok || seen {
			t.Fatalf("unexpected proof of %s", transactionID)
		}
		if previous != nil && !previous.Less(transactionID) {
			t.Fatalf("proofs are not in transaction ID order")
		}
		stored[transactionID] = true
		previous = &transactionID
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachProof: %+v", err)
	}
	for transactionID, seen := range stored {
		if !seen {
			t.Fatalf("the proof of %s was not visited, archived proofs included", transactionID)
		}
	}

	stop := errors.New("stop")
	visited := 0
	err = reopened.ForEachProof(func(*externalapi.FinalityProof) error {
		visited++
		return stop
	})
	if !errors.Is(err, stop) || visited != 1 {
		t.Fatalf("expected the iteration to stop at the first error, visited %d, got %+v", visited, err)
	}
}
