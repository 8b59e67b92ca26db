package serialization

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

func testBlock() *externalapi.CheckpointBlock {
	tx := &externalapi.DomainTransaction{
		Version: 1,
		Inputs: []*externalapi.DomainTransactionInput{{
			PreviousOutpoint: externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID{1}, Index: 2},
			SignatureScript:  []byte{3, 4},
			Sequence:         5,
		}},
		Outputs: []*externalapi.DomainTransactionOutput{{Value: 6, ScriptPublicKey: []byte{7}}},
	}
	return &externalapi.CheckpointBlock{
		Header: &externalapi.CheckpointBlockHeader{
			Version:    1,
			Height:     10,
			Slot:       11,
			SlotTime:   6600,
			PrevHash:   externalapi.DomainHash{12},
			ProducerID: externalapi.ValidatorID{13},
			VRFOutput:  externalapi.DomainHash{14},
			VRFProof:   []byte{15, 16},
		},
		Entries: []*externalapi.CheckpointEntry{{TransactionID: externalapi.DomainTransactionID{17}, ProofHash: externalapi.DomainHash{18}}},
		Proofs: []*externalapi.FinalityProof{{
			Transaction: tx,
			Slot:        11,
			Votes: []*externalapi.SignedVote{{
				NetworkID:     "timed-simnet",
				TransactionID: externalapi.DomainTransactionID{17},
				Commitment:    externalapi.DomainHash{19},
				Slot:          11,
				VoterID:       externalapi.ValidatorID{20},
				VoterWeight:   40,
				Signature:     []byte{21},
			}},
		}},
		Rewards:   []*externalapi.Reward{{ValidatorID: externalapi.ValidatorID{20}, Amount: 100}},
		Signature: []byte{22},
	}
}

func TestCheckpointBlockSerialization(t *testing.T) {
	block := testBlock()
	serialized := CheckpointBlockToBytes(block)
	deserialized, err := BytesToCheckpointBlock(serialized)
	if err != nil {
		t.Fatalf("BytesToCheckpointBlock: %+v", err)
	}
	if !reflect.DeepEqual(block, deserialized) {
		t.Fatalf("deserialized block differs.\nwant: %s\ngot: %s", spew.Sdump(block), spew.Sdump(deserialized))
	}

	// Every strict prefix must be rejected as malformed rather than panic.
	for _, cut := range []int{0, 1, 40, len(serialized) / 2, len(serialized) - 1} {
		_, err := BytesToCheckpointBlock(serialized[:cut])
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("truncation at %d: expected ErrMalformed, got %v", cut, err)
		}
	}

	_, err = BytesToCheckpointBlock(append(serialized, 0))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("trailing byte: expected ErrMalformed, got %v", err)
	}
}

func TestTransactionIDEncodingOmitsSignatureScripts(t *testing.T) {
	tx := testBlock().Proofs[0].Transaction
	withoutScripts := &bytes.Buffer{}
	if err := SerializeTransaction(withoutScripts, tx, false); err != nil {
		t.Fatalf("SerializeTransaction: %+v", err)
	}

	resigned := tx.Clone()
	resigned.Inputs[0].SignatureScript = []byte{99, 99, 99}
	resignedWithoutScripts := &bytes.Buffer{}
	if err := SerializeTransaction(resignedWithoutScripts, resigned, false); err != nil {
		t.Fatalf("SerializeTransaction: %+v", err)
	}
	if !bytes.Equal(withoutScripts.Bytes(), resignedWithoutScripts.Bytes()) {
		t.Fatalf("signature scripts leaked into the ID encoding")
	}
	if bytes.Equal(TransactionToBytes(tx), TransactionToBytes(resigned)) {
		t.Fatalf("full encoding ignores signature scripts")
	}
}

func TestReadCountLimit(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteElement(buf, uint64(maxTransactionInputs+1)); err != nil {
		t.Fatalf("WriteElement: %+v", err)
	}
	_, err := ReadCount(buf, maxTransactionInputs)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for an oversized count, got %v", err)
	}
}
