package checkpointproducer

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/infrastructure/logger"
)

// HandleBlock validates a candidate block received from a peer and
// collects it for its slot. A candidate that was already collected is
// ignored, and a committed block is refused with ErrDuplicateBlock.
// Nothing is collected while inclusion is paused.
func (cp *checkpointProducer) HandleBlock(block *externalapi.CheckpointBlock) error {
	if block == nil || block.Header == nil {
		return errors.New("block has no header")
	}
	blockHash := consensushashing.BlockHash(block.Header)
	if cp.isCandidate(block.Header.Slot, blockHash) {
		return nil
	}
	committed, err := cp.blockStore.HasBlock(blockHash)
	if err != nil {
		return err
	}
	if committed {
		return errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s is already committed", blockHash)
	}
	if cp.anomalyDetector.InclusionPaused() {
		return errors.Wrapf(ruleerrors.ErrInclusionPaused, "not collecting block %s", blockHash)
	}

	proofs, err := cp.validateBlock(block)
	if err != nil {
		cp.metrics.BlockCandidates.WithLabelValues("rejected").Inc()
		return err
	}

	cp.lock.Lock()
	defer cp.lock.Unlock()

	if cp.tip.hash != block.Header.PrevHash || cp.isCommitted(block.Header.Slot) {
		return errors.Wrapf(ruleerrors.ErrUnexpectedPrevHash, "the tip moved while block %s was validated", blockHash)
	}
	round := cp.slotRound(block.Header.Slot)
	if round.state != model.SlotStateSorting {
		log.Debugf("Ignoring candidate %s for slot %d in state %s", blockHash, block.Header.Slot, round.state)
		return nil
	}
	round.candidates[blockHash] = &candidate{block: block, hash: blockHash, proofs: proofs}
	cp.metrics.BlockCandidates.WithLabelValues("accepted").Inc()
	log.Debugf("Collected candidate %s of %s for slot %d", blockHash, block.Header.ProducerID, block.Header.Slot)
	return nil
}

func (cp *checkpointProducer) isCandidate(slot uint64, blockHash externalapi.DomainHash) bool {
	cp.lock.RLock()
	defer cp.lock.RUnlock()

	round, ok := cp.slots[slot]
	if !ok {
		return false
	}
	_, ok = round.candidates[blockHash]
	return ok
}

// CommitSlot commits the best candidate collected for slot and closes the
// slot. It returns nil if the slot had no candidate or was already closed.
// While inclusion is paused a slot with candidates stays open and
// ErrInclusionPaused is returned.
func (cp *checkpointProducer) CommitSlot(slot uint64) (*externalapi.CheckpointBlock, error) {
	cp.lock.Lock()
	defer cp.lock.Unlock()

	if cp.isCommitted(slot) {
		return nil, nil
	}
	round, ok := cp.slots[slot]
	if !ok || len(round.candidates) == 0 {
		log.Infof("Slot %d closed without a checkpoint block", slot)
		cp.markCommitted(slot)
		return nil, nil
	}
	if cp.anomalyDetector.InclusionPaused() {
		return nil, errors.Wrapf(ruleerrors.ErrInclusionPaused, "not committing slot %d", slot)
	}

	round.state = model.SlotStateSelected
	best := round.best()
	if best.block.Header.PrevHash != cp.tip.hash {
		cp.markCommitted(slot)
		return nil, errors.Wrapf(ruleerrors.ErrUnexpectedPrevHash, "candidate %s of slot %d no longer extends the tip",
			best.hash, slot)
	}
	err := cp.commit(best)
	if err != nil {
		return nil, err
	}
	return best.block, nil
}

// commit appends c as the new tip and archives its entries. It must be
// called with the lock held.
func (cp *checkpointProducer) commit(c *candidate) error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "commit")
	defer onEnd()

	for _, proof := range c.proofs {
		if cp.proofAssembler.IsFinal(consensushashing.TransactionID(proof.Transaction)) {
			continue
		}
		err := cp.proofAssembler.ImportProof(proof)
		if err != nil {
			return err
		}
	}

	for _, proof := range c.proofs {
		transactionID := consensushashing.TransactionID(proof.Transaction)
		if !cp.anomalyDetector.IsCanonical(transactionID) {
			return errors.Wrapf(ruleerrors.ErrConflictingProofs, "%s lost a conflict to another proven transaction",
				transactionID)
		}
		applied, err := cp.isApplied(proof.Transaction)
		if err != nil {
			return err
		}
		if !applied {
			return errors.Wrapf(ruleerrors.ErrConflictingProofs, "the inputs of %s are not final for it",
				transactionID)
		}
	}

	// The multiset is written before the block so that a recovered tip
	// always has one.
	tipMultiset := archiveMultiset(cp.tip.multiset, c.proofs)
	err := cp.multisetStore.Put(c.hash, tipMultiset.Serialize())
	if err != nil {
		return err
	}
	err = cp.blockStore.AppendBlock(c.block)
	if err != nil {
		return err
	}
	err = cp.archive(c.block, c.proofs)
	if err != nil {
		return err
	}

	cp.setTip(c.block, c.hash, tipMultiset)
	cp.metrics.BlocksCommitted.Inc()
	log.Infof("Committed checkpoint block %s at height %d for slot %d with %d entries",
		c.hash, c.block.Header.Height, c.block.Header.Slot, len(c.block.Entries))
	return nil
}

// archive moves the inputs of every entry of block to Archived, credits
// the block's rewards and drops the archived transactions from the
// pending set.
func (cp *checkpointProducer) archive(block *externalapi.CheckpointBlock, proofs []*externalapi.FinalityProof) error {
	height := block.Header.Height
	transactionIDs := make([]externalapi.DomainTransactionID, len(proofs))
	var outpoints []externalapi.DomainOutpoint
	for i, proof := range proofs {
		err := cp.utxoCoordinator.ArchiveTransaction(proof.Transaction, height)
		if err != nil {
			return errors.Wrapf(err, "failed to archive %s", block.Entries[i].TransactionID)
		}
		transactionIDs[i] = block.Entries[i].TransactionID
		outpoints = append(outpoints, proof.Transaction.Outpoints()...)
	}

	err := cp.proofStore.MarkArchived(transactionIDs, height)
	if err != nil {
		return err
	}
	err = cp.voteGuardStore.Forget(outpoints)
	if err != nil {
		return err
	}
	err = cp.rewardStore.Credit(height, block.Rewards)
	if err != nil {
		return err
	}
	cp.removePending(transactionIDs...)
	return nil
}
