package checkpointproducer

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/merkle"
	"github.com/timecoin/timed/domain/consensus/utils/multiset"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
)

// ProduceCandidate builds and signs the local candidate block for slot
// and collects it. It includes every canonical final transaction that
// was not archived yet, up to the block entry limit.
func (cp *checkpointProducer) ProduceCandidate(slot uint64) (*externalapi.CheckpointBlock, error) {
	if cp.signingKey == nil || cp.vrfKey == nil {
		return nil, errors.New("the local node has no producer keys")
	}
	if cp.anomalyDetector.InclusionPaused() {
		return nil, errors.Wrapf(ruleerrors.ErrInclusionPaused, "not producing a candidate for slot %d", slot)
	}
	snapshot, err := cp.validatorSetManager.Snapshot(slot)
	if err != nil {
		return nil, err
	}
	localID := cp.validatorSetManager.LocalValidatorID()
	if _, ok := snapshot.Validator(localID); !ok {
		return nil, errors.Wrapf(ruleerrors.ErrProducerNotInSnapshot,
			"local validator %s is not in the snapshot of slot %d", localID, slot)
	}

	cp.lock.Lock()
	defer cp.lock.Unlock()

	err = cp.checkSlot(slot, cp.tip)
	if err != nil {
		return nil, err
	}
	entries, proofs, err := cp.selectEntries()
	if err != nil {
		return nil, err
	}

	header := &externalapi.CheckpointBlockHeader{
		Version:    cp.params.BlockVersion,
		Height:     cp.tip.height + 1,
		Slot:       slot,
		SlotTime:   cp.params.SlotTime(slot),
		PrevHash:   cp.tip.hash,
		ProducerID: localID,
	}
	header.VRFOutput, header.VRFProof = cp.vrfKey.Prove(vrf.Input(header.PrevHash, header.SlotTime, cp.params.NetworkID))
	rewards := calculateRewards(cp.params, snapshot, localID)
	header.EntriesRoot = merkle.CalculateEntriesRoot(entries)
	header.UTXOCommitment = archiveMultiset(cp.tip.multiset, proofs).Hash()
	header.RewardsRoot = merkle.CalculateRewardsRoot(rewards)

	block := &externalapi.CheckpointBlock{
		Header:  header,
		Entries: entries,
		Proofs:  proofs,
		Rewards: rewards,
	}
	err = signing.SignBlock(cp.signingKey, block)
	if err != nil {
		return nil, err
	}

	blockHash := consensushashing.BlockHash(header)
	cp.slotRound(slot).candidates[blockHash] = &candidate{block: block, hash: blockHash, proofs: proofs}
	cp.metrics.BlockCandidates.WithLabelValues("produced").Inc()
	log.Debugf("Produced candidate %s for slot %d with %d entries", blockHash, slot, len(entries))
	return block, nil
}

// selectEntries picks the pending transactions of the next block in
// ascending ID order. It must be called with the lock held.
func (cp *checkpointProducer) selectEntries() ([]*externalapi.CheckpointEntry, []*externalapi.FinalityProof, error) {
	entries := make([]*externalapi.CheckpointEntry, 0)
	proofs := make([]*externalapi.FinalityProof, 0)
	spent := make(map[externalapi.DomainOutpoint]struct{})

	for _, transactionID := range cp.pendingTransactionIDs() {
		if len(entries) == cp.params.MaxBlockEntries {
			break
		}
		if !cp.anomalyDetector.IsCanonical(transactionID) {
			log.Debugf("Excluding non-canonical transaction %s", transactionID)
			continue
		}
		_, archived, err := cp.proofStore.ArchivedHeight(transactionID)
		if err != nil {
			return nil, nil, err
		}
		if archived {
			cp.removePending(transactionID)
			continue
		}
		proof, found, err := cp.proofStore.Proof(transactionID)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			log.Warnf("Pending transaction %s has no stored proof", transactionID)
			continue
		}
		applied, err := cp.isApplied(proof.Transaction)
		if err != nil {
			return nil, nil, err
		}
		if !applied {
			log.Warnf("Dropping %s: its inputs are not final for it", transactionID)
			cp.removePending(transactionID)
			continue
		}
		if spendsAny(proof.Transaction, spent) {
			log.Warnf("Excluding %s: it spends an output already spent in the block", transactionID)
			continue
		}
		for _, outpoint := range proof.Transaction.Outpoints() {
			spent[outpoint] = struct{}{}
		}

		entries = append(entries, &externalapi.CheckpointEntry{
			TransactionID: transactionID,
			ProofHash:     consensushashing.FinalityProofHash(proof),
		})
		proofs = append(proofs, proof)
	}
	return entries, proofs, nil
}

// isApplied returns whether every input of transaction is Final by it.
// A proof stored for an output another transaction already finalized is
// never applied.
func (cp *checkpointProducer) isApplied(transaction *externalapi.DomainTransaction) (bool, error) {
	transactionID := consensushashing.TransactionID(transaction)
	for _, outpoint := range transaction.Outpoints() {
		state, err := cp.utxoCoordinator.Query(outpoint)
		if err != nil {
			if errors.Is(err, ruleerrors.ErrMissingOutput) {
				return false, nil
			}
			return false, err
		}
		if state.Status != externalapi.UTXOStatusFinal || state.SpenderID != transactionID {
			return false, nil
		}
	}
	return true, nil
}

func spendsAny(transaction *externalapi.DomainTransaction, spent map[externalapi.DomainOutpoint]struct{}) bool {
	for _, outpoint := range transaction.Outpoints() {
		if _, ok := spent[outpoint]; ok {
			return true
		}
	}
	return false
}

// archiveMultiset returns the multiset of tipMultiset with the spends of
// every proven transaction added.
func archiveMultiset(tipMultiset *multiset.Multiset, proofs []*externalapi.FinalityProof) *multiset.Multiset {
	ms := tipMultiset.Clone()
	for _, proof := range proofs {
		transactionID := consensushashing.TransactionID(proof.Transaction)
		for _, outpoint := range proof.Transaction.Outpoints() {
			ms.AddSpend(outpoint, transactionID)
		}
	}
	return ms
}
