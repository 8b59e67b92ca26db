package checkpointproducer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/datastructures/blockstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/multisetstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/proofstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/rewardstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/snapshotstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/utxostatestore"
	"github.com/timecoin/timed/domain/consensus/datastructures/voteguardstore"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/processes/anomalydetector"
	"github.com/timecoin/timed/domain/consensus/processes/proofassembler"
	"github.com/timecoin/timed/domain/consensus/processes/utxocoordinator"
	"github.com/timecoin/timed/domain/consensus/processes/validatorsetmanager"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
	"github.com/timecoin/timed/domain/consensus/utils/transactionhelper"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/metrics"
)

const testSlot = 1000

// testChannel serves proof requests from the proof stores of the
// registered nodes and records broadcast blocks.
type testChannel struct {
	lock      sync.Mutex
	nodes     map[externalapi.ValidatorID]*testNode
	broadcast []*externalapi.CheckpointBlock
}

func newTestChannel() *testChannel {
	return &testChannel{nodes: make(map[externalapi.ValidatorID]*testNode)}
}

func (c *testChannel) Query(context.Context, externalapi.ValidatorID, []externalapi.DomainTransactionID,
	bool) ([]*externalapi.SampleAnswer, error) {

	return nil, errors.New("queries are not routed")
}

func (c *testChannel) RequestProof(_ context.Context, peer externalapi.ValidatorID,
	transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {

	c.lock.Lock()
	node, ok := c.nodes[peer]
	c.lock.Unlock()
	if !ok {
		return nil, errors.Errorf("peer %s unreachable", peer)
	}
	proof, found, err := node.proofStore.Proof(transactionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("peer %s has no proof of %s", peer, transactionID)
	}
	return proof, nil
}

func (c *testChannel) BroadcastProof(*externalapi.FinalityProof) {}

func (c *testChannel) RelayTransaction(*externalapi.DomainTransaction) {}

func (c *testChannel) BroadcastBlock(block *externalapi.CheckpointBlock) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.broadcast = append(c.broadcast, block)
}

func (c *testChannel) broadcastBlocks() []*externalapi.CheckpointBlock {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*externalapi.CheckpointBlock(nil), c.broadcast...)
}

type testNode struct {
	validator     *testutils.TestValidator
	db            database.Database
	producer      *checkpointProducer
	assembler     model.ProofAssembler
	coordinator   model.UTXOCoordinator
	detector      model.AnomalyDetector
	proofStore    model.ProofStore
	blockStore    model.BlockStore
	multisetStore model.MultisetStore
	rewardStore   model.RewardStore
}

type testNetwork struct {
	params     *dagconfig.Params
	clock      *testutils.ManualClock
	validators []*testutils.TestValidator
	channel    *testChannel
	genesisID  externalapi.DomainTransactionID
}

func newTestNetwork(t *testing.T, weights ...uint64) *testNetwork {
	params := dagconfig.SimnetParams
	return &testNetwork{
		params:     &params,
		clock:      testutils.NewManualClock(time.Unix(params.SlotTime(testSlot), 0)),
		validators: testutils.NewTestValidators(t, weights...),
		channel:    newTestChannel(),
		genesisID:  consensushashing.TransactionID(params.GenesisTransaction()),
	}
}

func (tn *testNetwork) newNode(t *testing.T, validator *testutils.TestValidator) *testNode {
	return tn.newNodeWithDatabase(t, validator, testutils.OpenTestDatabase(t))
}

func (tn *testNetwork) newNodeWithDatabase(t *testing.T, validator *testutils.TestValidator,
	db database.Database) *testNode {

	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New: %+v", err)
	}
	vsm, err := validatorsetmanager.New(tn.params, snapshotstore.New(db), testutils.Validators(tn.validators),
		nil, tn.clock, validator.ID)
	if err != nil {
		t.Fatalf("validatorsetmanager.New: %+v", err)
	}
	utxoStore, err := utxostatestore.New(db, 100)
	if err != nil {
		t.Fatalf("utxostatestore.New: %+v", err)
	}
	coordinator, err := utxocoordinator.New(tn.params, utxoStore, tn.clock, m)
	if err != nil {
		t.Fatalf("utxocoordinator.New: %+v", err)
	}
	err = coordinator.AddGenesisOutputs(tn.params.GenesisTransaction())
	if err != nil {
		t.Fatalf("AddGenesisOutputs: %+v", err)
	}
	proofStore, err := proofstore.New(db, 100)
	if err != nil {
		t.Fatalf("proofstore.New: %+v", err)
	}
	blockStore, err := blockstore.New(db, 10)
	if err != nil {
		t.Fatalf("blockstore.New: %+v", err)
	}
	multisetStore, err := multisetstore.New(db, 10)
	if err != nil {
		t.Fatalf("multisetstore.New: %+v", err)
	}
	rewardStore := rewardstore.New(db)
	detector := anomalydetector.New(tn.params, tn.clock, m)
	assembler, err := proofassembler.New(tn.params, vsm, proofStore, coordinator, detector, m)
	if err != nil {
		t.Fatalf("proofassembler.New: %+v", err)
	}

	producer, err := New(tn.params, validator.SigningKey, validator.VRFKey, blockStore, proofStore, multisetStore,
		rewardStore, voteguardstore.New(db), coordinator, assembler, detector, vsm, tn.channel, tn.clock, m)
	if err != nil {
		t.Fatalf("checkpointproducer.New: %+v", err)
	}
	assembler.AddFinalityListener(producer)

	node := &testNode{
		validator:     validator,
		db:            db,
		producer:      producer.(*checkpointProducer),
		assembler:     assembler,
		coordinator:   coordinator,
		detector:      detector,
		proofStore:    proofStore,
		blockStore:    blockStore,
		multisetStore: multisetStore,
		rewardStore:   rewardStore,
	}
	tn.channel.lock.Lock()
	tn.channel.nodes[validator.ID] = node
	tn.channel.lock.Unlock()
	return node
}

func (tn *testNetwork) spend(payload string, index uint32) *externalapi.DomainTransaction {
	outpoint := externalapi.DomainOutpoint{TransactionID: tn.genesisID, Index: index}
	return transactionhelper.NewSpendTransaction([]externalapi.DomainOutpoint{outpoint},
		dagconfig.UnitsPerTime, []byte{0x51}, []byte(payload))
}

// proof returns a finality proof for tx signed by the validators of the
// given weights.
func (tn *testNetwork) proof(t *testing.T, tx *externalapi.DomainTransaction,
	weights ...uint64) *externalapi.FinalityProof {

	var votes []*externalapi.SignedVote
	for _, weight := range weights {
		for _, validator := range tn.validators {
			if validator.Weight == weight {
				votes = append(votes, validator.SignVote(t, tn.params.NetworkID, tx, testSlot))
				break
			}
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].VoterID.Less(votes[j].VoterID) })
	return &externalapi.FinalityProof{Transaction: tx, Slot: testSlot, Votes: votes}
}

func (tn *testNetwork) finalize(t *testing.T, node *testNode, tx *externalapi.DomainTransaction) {
	err := node.assembler.ImportProof(tn.proof(t, tx, 40, 30))
	if err != nil {
		t.Fatalf("ImportProof: %+v", err)
	}
}

func TestCalculateRewards(t *testing.T) {
	tn := newTestNetwork(t, 1, 1, 1)
	snapshot, err := externalapi.NewValidatorSetSnapshot(testSlot, testutils.Validators(tn.validators))
	if err != nil {
		t.Fatalf("NewValidatorSetSnapshot: %+v", err)
	}
	producerID := tn.validators[1].ID
	rewards := calculateRewards(tn.params, snapshot, producerID)

	if len(rewards) != 4 {
		t.Fatalf("expected 4 rewards, got %s", spew.Sdump(rewards))
	}
	var total uint64
	for i, reward := range rewards {
		total += reward.Amount
		if i > 0 && !rewards[i-1].ValidatorID.Less(reward.ValidatorID) {
			t.Fatalf("rewards are not sorted: %s", spew.Sdump(rewards))
		}
	}
	if total != tn.params.BlockReward {
		t.Fatalf("expected rewards to total %d, got %d", tn.params.BlockReward, total)
	}

	share := tn.params.VotingReward() / 3
	dust := tn.params.VotingReward() - 3*share
	expected := map[externalapi.ValidatorID]uint64{
		tn.validators[0].ID:  share,
		producerID:           share + dust + tn.params.ProducerReward,
		tn.validators[2].ID:  share,
		tn.params.TreasuryID: tn.params.TreasuryReward,
	}
	for _, reward := range rewards {
		if reward.Amount != expected[reward.ValidatorID] {
			t.Fatalf("expected %d for %s, got %d", expected[reward.ValidatorID], reward.ValidatorID, reward.Amount)
		}
	}
}

func TestProduceValidateCommit(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	producer := tn.newNode(t, tn.validators[0])
	follower := tn.newNode(t, tn.validators[1])

	tx := tn.spend("a", 0)
	txID := consensushashing.TransactionID(tx)
	tn.finalize(t, producer, tx)

	block, err := producer.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	if len(block.Entries) != 1 || block.Entries[0].TransactionID != txID {
		t.Fatalf("unexpected entries %s", spew.Sdump(block.Entries))
	}
	if block.Header.Height != 1 || block.Header.PrevHash != externalapi.ZeroHash {
		t.Fatalf("unexpected header %s", spew.Sdump(block.Header))
	}
	if producer.producer.SlotState(testSlot) != model.SlotStateSorting {
		t.Fatalf("expected Sorting, got %s", producer.producer.SlotState(testSlot))
	}

	err = follower.producer.HandleBlock(block)
	if err != nil {
		t.Fatalf("HandleBlock: %+v", err)
	}
	// Duplicates are ignored.
	err = follower.producer.HandleBlock(block)
	if err != nil {
		t.Fatalf("HandleBlock of a duplicate: %+v", err)
	}

	blockHash := consensushashing.BlockHash(block.Header)
	for _, node := range []*testNode{producer, follower} {
		committed, err := node.producer.CommitSlot(testSlot)
		if err != nil {
			t.Fatalf("CommitSlot: %+v", err)
		}
		if committed == nil || consensushashing.BlockHash(committed.Header) != blockHash {
			t.Fatalf("unexpected committed block %s", spew.Sdump(committed))
		}
		if node.producer.SlotState(testSlot) != model.SlotStateCommitted {
			t.Fatalf("expected Committed, got %s", node.producer.SlotState(testSlot))
		}

		state, err := node.coordinator.Query(tx.Inputs[0].PreviousOutpoint)
		if err != nil {
			t.Fatalf("Query: %+v", err)
		}
		if state.Status != externalapi.UTXOStatusArchived || state.SpenderID != txID || state.ArchivedAt != 1 {
			t.Fatalf("unexpected output state %s", state)
		}
		height, archived, err := node.proofStore.ArchivedHeight(txID)
		if err != nil || !archived || height != 1 {
			t.Fatalf("ArchivedHeight: %d, %t, %+v", height, archived, err)
		}
		balance, err := node.rewardStore.Balance(tn.params.TreasuryID)
		if err != nil || balance != tn.params.TreasuryReward {
			t.Fatalf("treasury balance: %d, %+v", balance, err)
		}

		err = node.producer.HandleBlock(block)
		if !errors.Is(err, ruleerrors.ErrDuplicateBlock) {
			t.Fatalf("expected ErrDuplicateBlock for a committed block, got %+v", err)
		}
	}

	next, err := producer.producer.ProduceCandidate(testSlot)
	if err == nil {
		t.Fatalf("produced a second block for a committed slot: %s", spew.Sdump(next))
	}
}

func TestCanonicalCandidateHasLowestVRFOutput(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	nodes := []*testNode{tn.newNode(t, tn.validators[0]), tn.newNode(t, tn.validators[1])}

	var candidates []*externalapi.CheckpointBlock
	for _, node := range nodes {
		block, err := node.producer.ProduceCandidate(testSlot)
		if err != nil {
			t.Fatalf("ProduceCandidate: %+v", err)
		}
		candidates = append(candidates, block)
	}
	err := nodes[0].producer.HandleBlock(candidates[1])
	if err != nil {
		t.Fatalf("HandleBlock: %+v", err)
	}
	err = nodes[1].producer.HandleBlock(candidates[0])
	if err != nil {
		t.Fatalf("HandleBlock: %+v", err)
	}

	expected := candidates[0]
	if candidates[1].Header.VRFOutput.Less(candidates[0].Header.VRFOutput) {
		expected = candidates[1]
	}
	expectedHash := consensushashing.BlockHash(expected.Header)
	for _, node := range nodes {
		committed, err := node.producer.CommitSlot(testSlot)
		if err != nil {
			t.Fatalf("CommitSlot: %+v", err)
		}
		if consensushashing.BlockHash(committed.Header) != expectedHash {
			t.Fatalf("node %s committed a different block", node.validator.ID)
		}
	}
}

func TestProofsAreFetchedFromPeers(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	producer := tn.newNode(t, tn.validators[0])
	follower := tn.newNode(t, tn.validators[1])

	tx := tn.spend("a", 0)
	tn.finalize(t, producer, tx)
	block, err := producer.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	block.Proofs = nil

	err = follower.producer.HandleBlock(block)
	if err != nil {
		t.Fatalf("HandleBlock: %+v", err)
	}
	_, err = follower.producer.CommitSlot(testSlot)
	if err != nil {
		t.Fatalf("CommitSlot: %+v", err)
	}
	if !follower.assembler.IsFinal(consensushashing.TransactionID(tx)) {
		t.Fatalf("fetched proof was not imported")
	}
}

func TestMissingProofRejectsBlock(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	producer := tn.newNode(t, tn.validators[0])
	follower := tn.newNode(t, tn.validators[1])

	tn.finalize(t, producer, tn.spend("a", 0))
	block, err := producer.producer.ProduceCandidate(testSlot)
	if err != nil {
		t.Fatalf("ProduceCandidate: %+v", err)
	}
	block.Proofs = nil

	tn.channel.lock.Lock()
	delete(tn.channel.nodes, producer.validator.ID)
	tn.channel.lock.Unlock()

	err = follower.producer.HandleBlock(block)
	if !errors.Is(err, ruleerrors.ErrMissingProof) {
		t.Fatalf("expected ErrMissingProof, got %+v", err)
	}
}
