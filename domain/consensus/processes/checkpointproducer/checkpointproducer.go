package checkpointproducer

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/multiset"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/metrics"
)

// tipState is the committed tip as seen by validation. The zero value,
// with an empty multiset, is the implicit genesis checkpoint at height 0.
type tipState struct {
	hasTip   bool
	height   uint64
	slot     uint64
	hash     externalapi.DomainHash
	multiset *multiset.Multiset
}

// candidate is a validated block collected for its slot, together with
// the proofs of its entries.
type candidate struct {
	block  *externalapi.CheckpointBlock
	hash   externalapi.DomainHash
	proofs []*externalapi.FinalityProof
}

// ranksBefore orders candidates by VRF output, then by block hash.
func (c *candidate) ranksBefore(other *candidate) bool {
	if c.block.Header.VRFOutput != other.block.Header.VRFOutput {
		return c.block.Header.VRFOutput.Less(other.block.Header.VRFOutput)
	}
	return c.hash.Less(other.hash)
}

type slotRound struct {
	state      model.SlotState
	candidates map[externalapi.DomainHash]*candidate
}

func (round *slotRound) best() *candidate {
	var best *candidate
	for _, c := range round.candidates {
		if best == nil || c.ranksBefore(best) {
			best = c
		}
	}
	return best
}

type checkpointProducer struct {
	params     *dagconfig.Params
	signingKey *secp256k1.SchnorrKeyPair
	vrfKey     *vrf.PrivateKey

	blockStore          model.BlockStore
	proofStore          model.ProofStore
	multisetStore       model.MultisetStore
	rewardStore         model.RewardStore
	voteGuardStore      model.VoteGuardStore
	utxoCoordinator     model.UTXOCoordinator
	proofAssembler      model.ProofAssembler
	anomalyDetector     model.AnomalyDetector
	validatorSetManager model.ValidatorSetManager
	messageChannel      model.MessageChannel
	clock               model.Clock
	metrics             *metrics.Metrics

	lock             sync.RWMutex
	tip              tipState
	committedSlot    uint64
	hasCommittedSlot bool
	lastStartedSlot  uint64
	slots            map[uint64]*slotRound

	pendingLock sync.Mutex
	pending     *btree.BTreeG[externalapi.DomainTransactionID]

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New instantiates a new CheckpointProducer and recovers the committed
// tip. A nil signingKey or vrfKey makes the node validate and commit
// blocks without producing its own.
func New(params *dagconfig.Params,
	signingKey *secp256k1.SchnorrKeyPair,
	vrfKey *vrf.PrivateKey,
	blockStore model.BlockStore,
	proofStore model.ProofStore,
	multisetStore model.MultisetStore,
	rewardStore model.RewardStore,
	voteGuardStore model.VoteGuardStore,
	utxoCoordinator model.UTXOCoordinator,
	proofAssembler model.ProofAssembler,
	anomalyDetector model.AnomalyDetector,
	validatorSetManager model.ValidatorSetManager,
	messageChannel model.MessageChannel,
	clock model.Clock,
	metrics *metrics.Metrics) (model.CheckpointProducer, error) {

	cp := &checkpointProducer{
		params:              params,
		signingKey:          signingKey,
		vrfKey:              vrfKey,
		blockStore:          blockStore,
		proofStore:          proofStore,
		multisetStore:       multisetStore,
		rewardStore:         rewardStore,
		voteGuardStore:      voteGuardStore,
		utxoCoordinator:     utxoCoordinator,
		proofAssembler:      proofAssembler,
		anomalyDetector:     anomalyDetector,
		validatorSetManager: validatorSetManager,
		messageChannel:      messageChannel,
		clock:               clock,
		metrics:             metrics,
		slots:               make(map[uint64]*slotRound),
		pending:             btree.NewG(pendingTreeDegree, externalapi.DomainTransactionID.Less),
		quit:                make(chan struct{}),
	}

	err := cp.recoverTip()
	if err != nil {
		return nil, err
	}
	unarchived, err := proofStore.Unarchived()
	if err != nil {
		return nil, err
	}
	cp.addPending(unarchived...)
	return cp, nil
}

// recoverTip loads the committed tip and reapplies its archival, which
// completes a commit interrupted by a crash. Every step of the archival
// is idempotent.
func (cp *checkpointProducer) recoverTip() error {
	block, found, err := cp.blockStore.Tip()
	if err != nil {
		return err
	}
	if !found {
		cp.tip = tipState{multiset: multiset.New()}
		return nil
	}

	blockHash := consensushashing.BlockHash(block.Header)
	multisetBytes, found, err := cp.multisetStore.Get(blockHash)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("missing archive multiset of tip %s", blockHash)
	}
	tipMultiset, err := multiset.FromBytes(multisetBytes)
	if err != nil {
		return err
	}

	proofs := make([]*externalapi.FinalityProof, len(block.Entries))
	for i, entry := range block.Entries {
		proof, found, err := cp.proofStore.Proof(entry.TransactionID)
		if err != nil {
			return err
		}
		if !found {
			return errors.Errorf("missing proof of %s archived by tip %s", entry.TransactionID, blockHash)
		}
		proofs[i] = proof
	}
	err = cp.archive(block, proofs)
	if err != nil {
		return err
	}

	cp.setTip(block, blockHash, tipMultiset)
	log.Infof("Recovered checkpoint tip %s at height %d", blockHash, block.Header.Height)
	return nil
}

// setTip must be called with the lock held, or before the producer is
// shared.
func (cp *checkpointProducer) setTip(block *externalapi.CheckpointBlock, blockHash externalapi.DomainHash,
	tipMultiset *multiset.Multiset) {

	cp.tip = tipState{
		hasTip:   true,
		height:   block.Header.Height,
		slot:     block.Header.Slot,
		hash:     blockHash,
		multiset: tipMultiset,
	}
	cp.markCommitted(block.Header.Slot)
}

// markCommitted closes slot and every slot before it. It must be called
// with the lock held.
func (cp *checkpointProducer) markCommitted(slot uint64) {
	if !cp.hasCommittedSlot || slot > cp.committedSlot {
		cp.committedSlot = slot
		cp.hasCommittedSlot = true
	}
	for s := range cp.slots {
		if s <= cp.committedSlot {
			delete(cp.slots, s)
		}
	}
}

func (cp *checkpointProducer) isCommitted(slot uint64) bool {
	return cp.hasCommittedSlot && slot <= cp.committedSlot
}

func (cp *checkpointProducer) SlotState(slot uint64) model.SlotState {
	cp.lock.RLock()
	defer cp.lock.RUnlock()

	if cp.isCommitted(slot) {
		return model.SlotStateCommitted
	}
	if round, ok := cp.slots[slot]; ok {
		return round.state
	}
	return model.SlotStateAwaitingSlot
}

func (cp *checkpointProducer) Tip() (*externalapi.CheckpointBlock, bool, error) {
	return cp.blockStore.Tip()
}

// slotRound returns the round of slot, moving it to Sorting. It must be
// called with the lock held.
func (cp *checkpointProducer) slotRound(slot uint64) *slotRound {
	round, ok := cp.slots[slot]
	if !ok {
		round = &slotRound{
			state:      model.SlotStateSorting,
			candidates: make(map[externalapi.DomainHash]*candidate),
		}
		cp.slots[slot] = round
	}
	return round
}

// dueSlots returns the open slots whose collection window ended, in
// ascending order. It must be called with the lock held.
func (cp *checkpointProducer) dueSlots(now int64) []uint64 {
	var due []uint64
	for slot, round := range cp.slots {
		if round.state == model.SlotStateSorting &&
			now >= cp.params.SlotTime(slot)+int64(cp.params.CollectionWindow.Seconds()) {
			due = append(due, slot)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}
