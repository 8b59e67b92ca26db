package checkpointproducer

import (
	"sort"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/merkle"
	"github.com/timecoin/timed/domain/consensus/utils/multiset"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
)

// buildBlock builds and signs the first checkpoint block of testSlot
// carrying proofs, without any of the producer's checks.
func (tn *testNetwork) buildBlock(t *testing.T, producer *testutils.TestValidator,
	proofs []*externalapi.FinalityProof) *externalapi.CheckpointBlock {

	sort.Slice(proofs, func(i, j int) bool {
		return consensushashing.TransactionID(proofs[i].Transaction).Less(
			consensushashing.TransactionID(proofs[j].Transaction))
	})
	entries := make([]*externalapi.CheckpointEntry, len(proofs))
	for i, proof := range proofs {
		entries[i] = &externalapi.CheckpointEntry{
			TransactionID: consensushashing.TransactionID(proof.Transaction),
			ProofHash:     consensushashing.FinalityProofHash(proof),
		}
	}
	snapshot, err := externalapi.NewValidatorSetSnapshot(testSlot, testutils.Validators(tn.validators))
	if err != nil {
		t.Fatalf("NewValidatorSetSnapshot: %+v", err)
	}
	rewards := calculateRewards(tn.params, snapshot, producer.ID)

	header := &externalapi.CheckpointBlockHeader{
		Version:        tn.params.BlockVersion,
		Height:         1,
		Slot:           testSlot,
		SlotTime:       tn.params.SlotTime(testSlot),
		ProducerID:     producer.ID,
		EntriesRoot:    merkle.CalculateEntriesRoot(entries),
		UTXOCommitment: archiveMultiset(multiset.New(), proofs).Hash(),
		RewardsRoot:    merkle.CalculateRewardsRoot(rewards),
	}
	header.VRFOutput, header.VRFProof = producer.VRFKey.Prove(vrf.Input(header.PrevHash, header.SlotTime,
		tn.params.NetworkID))
	block := &externalapi.CheckpointBlock{Header: header, Entries: entries, Proofs: proofs, Rewards: rewards}
	err = signing.SignBlock(producer.SigningKey, block)
	if err != nil {
		t.Fatalf("SignBlock: %+v", err)
	}
	return block
}

func copyBlock(block *externalapi.CheckpointBlock) *externalapi.CheckpointBlock {
	header := *block.Header
	return &externalapi.CheckpointBlock{
		Header:    &header,
		Entries:   append([]*externalapi.CheckpointEntry(nil), block.Entries...),
		Proofs:    append([]*externalapi.FinalityProof(nil), block.Proofs...),
		Rewards:   append([]*externalapi.Reward(nil), block.Rewards...),
		Signature: append([]byte(nil), block.Signature...),
	}
}

func TestValidateBlockRejections(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	producer := tn.validators[0]
	follower := tn.newNode(t, tn.validators[1])

	valid := tn.buildBlock(t, producer, []*externalapi.FinalityProof{
		tn.proof(t, tn.spend("a", 0), 40, 30),
		tn.proof(t, tn.spend("b", 1), 40, 30),
	})
	err := follower.producer.ValidateBlock(valid)
	if err != nil {
		t.Fatalf("ValidateBlock of a valid block: %+v", err)
	}

	tests := []struct {
		name     string
		mutate   func(block *externalapi.CheckpointBlock)
		resign   bool
		expected error
	}{
		{
			name:     "unknown version",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.Version++ },
			resign:   true,
			expected: ruleerrors.ErrBlockVersionIsUnknown,
		},
		{
			name:     "skipped height",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.Height = 2 },
			resign:   true,
			expected: ruleerrors.ErrUnexpectedHeight,
		},
		{
			name:     "unknown parent",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.PrevHash = externalapi.DomainHash{1} },
			resign:   true,
			expected: ruleerrors.ErrUnexpectedPrevHash,
		},
		{
			name:     "wrong slot time",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.SlotTime++ },
			resign:   true,
			expected: ruleerrors.ErrUnexpectedSlot,
		},
		{
			name: "future slot",
			mutate: func(block *externalapi.CheckpointBlock) {
				block.Header.Slot = testSlot + 1
				block.Header.SlotTime = tn.params.SlotTime(testSlot + 1)
			},
			resign:   true,
			expected: ruleerrors.ErrUnexpectedSlot,
		},
		{
			name:     "unknown producer",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.ProducerID = externalapi.ValidatorID{9} },
			resign:   true,
			expected: ruleerrors.ErrProducerNotInSnapshot,
		},
		{
			name:     "forged VRF output",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.VRFOutput = externalapi.DomainHash{} },
			resign:   true,
			expected: ruleerrors.ErrBadVRFProof,
		},
		{
			name:     "bad signature",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Signature[0] ^= 0xff },
			expected: ruleerrors.ErrBadBlockSignature,
		},
		{
			name: "unsorted entries",
			mutate: func(block *externalapi.CheckpointBlock) {
				block.Entries[0], block.Entries[1] = block.Entries[1], block.Entries[0]
				block.Proofs[0], block.Proofs[1] = block.Proofs[1], block.Proofs[0]
			},
			expected: ruleerrors.ErrEntriesNotSorted,
		},
		{
			name:     "proof count mismatch",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Proofs = block.Proofs[:1] },
			expected: ruleerrors.ErrMissingProof,
		},
		{
			name: "wrong proof hash",
			mutate: func(block *externalapi.CheckpointBlock) {
				block.Entries[0] = &externalapi.CheckpointEntry{
					TransactionID: block.Entries[0].TransactionID,
					ProofHash:     externalapi.DomainHash{1},
				}
			},
			expected: ruleerrors.ErrBadProofHash,
		},
		{
			name:     "wrong entries root",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.EntriesRoot = externalapi.DomainHash{1} },
			resign:   true,
			expected: ruleerrors.ErrBadMerkleRoot,
		},
		{
			name: "wrong UTXO commitment",
			mutate: func(block *externalapi.CheckpointBlock) {
				block.Header.UTXOCommitment = externalapi.DomainHash{1}
			},
			resign:   true,
			expected: ruleerrors.ErrBadUTXOCommitment,
		},
		{
			name: "inflated reward",
			mutate: func(block *externalapi.CheckpointBlock) {
				block.Rewards[0] = &externalapi.Reward{
					ValidatorID: block.Rewards[0].ValidatorID,
					Amount:      block.Rewards[0].Amount + 1,
				}
			},
			expected: ruleerrors.ErrBadRewards,
		},
		{
			name:     "wrong rewards root",
			mutate:   func(block *externalapi.CheckpointBlock) { block.Header.RewardsRoot = externalapi.DomainHash{1} },
			resign:   true,
			expected: ruleerrors.ErrBadMerkleRoot,
		},
	}

	for _, test := range tests {
		block := copyBlock(valid)
		test.mutate(block)
		if test.resign {
			err := signing.SignBlock(producer.SigningKey, block)
			if err != nil {
				t.Fatalf("%s: SignBlock: %+v", test.name, err)
			}
		}
		err := follower.producer.ValidateBlock(block)
		if !errors.Is(err, test.expected) {
			t.Fatalf("%s: expected %s, got %+v", test.name, test.expected, err)
		}
	}
}

func TestDoubleSpendInBlockIsRejected(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	follower := tn.newNode(t, tn.validators[1])

	block := tn.buildBlock(t, tn.validators[0], []*externalapi.FinalityProof{
		tn.proof(t, tn.spend("a", 0), 40, 30),
		tn.proof(t, tn.spend("b", 0), 40, 30),
	})
	err := follower.producer.HandleBlock(block)
	if !errors.Is(err, ruleerrors.ErrDoubleSpendInSameBlock) {
		t.Fatalf("expected ErrDoubleSpendInSameBlock, got %+v", err)
	}
}

// importConflict finalizes a and then imports a heavier proof of b,
// which spends the same output.
func (tn *testNetwork) importConflict(t *testing.T, node *testNode, a, b *externalapi.DomainTransaction) {
	tn.finalize(t, node, a)
	err := node.assembler.ImportProof(tn.proof(t, b, 40, 30, 20, 10))
	if !ruleerrors.IsClass(err, ruleerrors.ClassSafetyViolation) {
		t.Fatalf("expected a SafetyViolation, got %+v", err)
	}
	if !node.detector.InclusionPaused() {
		t.Fatalf("inclusion is not paused")
	}
}

func TestSafetyViolationPausesInclusion(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	node := tn.newNode(t, tn.validators[0])

	a, b := tn.spend("a", 0), tn.spend("b", 0)
	aID, bID := consensushashing.TransactionID(a), consensushashing.TransactionID(b)
	tn.importConflict(t, node, a, b)

	_, err := node.producer.ProduceCandidate(testSlot)
	if !errors.Is(err, ruleerrors.ErrInclusionPaused) {
		t.Fatalf("expected ErrInclusionPaused, got %+v", err)
	}
	err = node.producer.HandleBlock(tn.buildBlock(t, tn.validators[1], nil))
	if !errors.Is(err, ruleerrors.ErrInclusionPaused) {
		t.Fatalf("expected ErrInclusionPaused for a peer block, got %+v", err)
	}

	node.detector.AcknowledgeSafetyViolation()
	block, err := node.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	if len(block.Entries) != 0 {
		t.Fatalf("a conflicting transaction was included: %s", spew.Sdump(block.Entries))
	}
	for _, transactionID := range node.producer.pendingTransactionIDs() {
		if transactionID == bID {
			t.Fatalf("the unapplied transaction %s is still pending", bID)
		}
	}

	committed, err := node.producer.CommitSlot(testSlot)
	if err != nil {
		t.Fatalf("CommitSlot: %+v", err)
	}
	if committed == nil || committed.Header.Height != 1 {
		t.Fatalf("the chain did not advance: %s", spew.Sdump(committed))
	}
	state, err := node.coordinator.Query(a.Inputs[0].PreviousOutpoint)
	if err != nil {
		t.Fatalf("Query: %+v", err)
	}
	if state.Status != externalapi.UTXOStatusFinal || state.SpenderID != aID {
		t.Fatalf("unexpected output state %s", state)
	}
}

func TestPausedSlotStaysOpen(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	node := tn.newNode(t, tn.validators[0])

	block, err := node.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	tn.importConflict(t, node, tn.spend("a", 0), tn.spend("b", 0))

	_, err = node.producer.CommitSlot(testSlot)
	if !errors.Is(err, ruleerrors.ErrInclusionPaused) {
		t.Fatalf("expected ErrInclusionPaused, got %+v", err)
	}
	if node.producer.SlotState(testSlot) != model.SlotStateSorting {
		t.Fatalf("expected Sorting, got %s", node.producer.SlotState(testSlot))
	}

	node.detector.AcknowledgeSafetyViolation()
	committed, err := node.producer.CommitSlot(testSlot)
	if err != nil {
		t.Fatalf("CommitSlot: %+v", err)
	}
	if committed == nil || consensushashing.BlockHash(committed.Header) != consensushashing.BlockHash(block.Header) {
		t.Fatalf("unexpected committed block %s", spew.Sdump(committed))
	}
}

func TestCommitRefusesConflictedEntries(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	node := tn.newNode(t, tn.validators[0])

	a, b := tn.spend("a", 0), tn.spend("b", 0)
	tn.finalize(t, node, a)
	block, err := node.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	if len(block.Entries) != 1 {
		t.Fatalf("unexpected entries %s", spew.Sdump(block.Entries))
	}
	err = node.assembler.ImportProof(tn.proof(t, b, 40, 30, 20, 10))
	if !ruleerrors.IsClass(err, ruleerrors.ClassSafetyViolation) {
		t.Fatalf("expected a SafetyViolation, got %+v", err)
	}
	node.detector.AcknowledgeSafetyViolation()

	_, err = node.producer.CommitSlot(testSlot)
	if !errors.Is(err, ruleerrors.ErrConflictingProofs) {
		t.Fatalf("expected ErrConflictingProofs, got %+v", err)
	}
	_, hasTip, err := node.blockStore.Tip()
	if err != nil || hasTip {
		t.Fatalf("a block was appended: hasTip=%t err=%+v", hasTip, err)
	}
}

func TestBlockSpendingFinalOutputIsRejected(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	follower := tn.newNode(t, tn.validators[1])
	tn.finalize(t, follower, tn.spend("a", 0))

	block := tn.buildBlock(t, tn.validators[0], []*externalapi.FinalityProof{
		tn.proof(t, tn.spend("b", 0), 40, 30),
	})
	err := follower.producer.HandleBlock(block)
	if !errors.Is(err, ruleerrors.ErrConflictingProofs) {
		t.Fatalf("expected ErrConflictingProofs, got %+v", err)
	}
}

func TestRecoverInterruptedCommit(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	path := t.TempDir()
	db := testutils.OpenTestDatabaseAt(t, path)
	node := tn.newNodeWithDatabase(t, tn.validators[0], db)

	tx := tn.spend("a", 0)
	txID := consensushashing.TransactionID(tx)
	tn.finalize(t, node, tx)
	block, err := node.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}

	// Crash right after the block was appended.
	blockHash := consensushashing.BlockHash(block.Header)
	err = node.multisetStore.Put(blockHash, archiveMultiset(multiset.New(), block.Proofs).Serialize())
	if err != nil {
		t.Fatalf("Put: %+v", err)
	}
	err = node.blockStore.AppendBlock(block)
	if err != nil {
		t.Fatalf("AppendBlock: %+v", err)
	}
	err = db.Close()
	if err != nil {
		t.Fatalf("Close: %+v", err)
	}

	restarted := tn.newNodeWithDatabase(t, tn.validators[0], testutils.OpenTestDatabaseAt(t, path))
	if restarted.producer.SlotState(testSlot) != model.SlotStateCommitted {
		t.Fatalf("expected slot %d to be committed, got %s", testSlot, restarted.producer.SlotState(testSlot))
	}
	if restarted.producer.tip.height != 1 || restarted.producer.tip.hash != blockHash {
		t.Fatalf("unexpected recovered tip %+v", restarted.producer.tip)
	}
	if restarted.producer.tip.multiset.Hash() != block.Header.UTXOCommitment {
		t.Fatalf("recovered multiset does not match the tip's commitment")
	}
	state, err := restarted.coordinator.Query(tx.Inputs[0].PreviousOutpoint)
	if err != nil {
		t.Fatalf("Query: %+v", err)
	}
	if state.Status != externalapi.UTXOStatusArchived || state.SpenderID != txID {
		t.Fatalf("unexpected output state %s", state)
	}
	balance, err := restarted.rewardStore.Balance(tn.params.TreasuryID)
	if err != nil || balance != tn.params.TreasuryReward {
		t.Fatalf("treasury balance: %d, %+v", balance, err)
	}
	if len(restarted.producer.pendingTransactionIDs()) != 0 {
		t.Fatalf("archived transaction is still pending")
	}
}
