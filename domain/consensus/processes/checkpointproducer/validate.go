package checkpointproducer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/merkle"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentProofRequests = 16

// checkSlot checks that a block for slot may extend tip. It must be
// called with the lock held.
func (cp *checkpointProducer) checkSlot(slot uint64, tip tipState) error {
	if cp.isCommitted(slot) || (tip.hasTip && slot <= tip.slot) {
		return errors.Wrapf(ruleerrors.ErrUnexpectedSlot, "slot %d is already closed", slot)
	}
	currentSlot := cp.params.SlotAt(cp.clock.Now())
	if slot > currentSlot {
		return errors.Wrapf(ruleerrors.ErrUnexpectedSlot, "slot %d has not started, current slot is %d",
			slot, currentSlot)
	}
	return nil
}

func (cp *checkpointProducer) ValidateBlock(block *externalapi.CheckpointBlock) error {
	_, err := cp.validateBlock(block)
	return err
}

// validateBlock validates block against the current tip and returns the
// proofs of its entries, fetched from peers where the block carries none.
func (cp *checkpointProducer) validateBlock(block *externalapi.CheckpointBlock) ([]*externalapi.FinalityProof, error) {
	header := block.Header

	cp.lock.RLock()
	tip := cp.tip
	err := cp.checkSlot(header.Slot, tip)
	cp.lock.RUnlock()
	if err != nil {
		return nil, err
	}

	if header.Version != cp.params.BlockVersion {
		return nil, errors.Wrapf(ruleerrors.ErrBlockVersionIsUnknown, "block version %d is unknown", header.Version)
	}
	if header.Height != tip.height+1 {
		return nil, errors.Wrapf(ruleerrors.ErrUnexpectedHeight, "block height is %d, expected %d",
			header.Height, tip.height+1)
	}
	if header.PrevHash != tip.hash {
		return nil, errors.Wrapf(ruleerrors.ErrUnexpectedPrevHash, "block extends %s instead of the tip %s",
			header.PrevHash, tip.hash)
	}
	if header.SlotTime != cp.params.SlotTime(header.Slot) {
		return nil, errors.Wrapf(ruleerrors.ErrUnexpectedSlot, "slot time %d does not match slot %d",
			header.SlotTime, header.Slot)
	}

	snapshot, err := cp.validatorSetManager.Snapshot(header.Slot)
	if err != nil {
		return nil, err
	}
	producer, ok := snapshot.Validator(header.ProducerID)
	if !ok {
		return nil, errors.Wrapf(ruleerrors.ErrProducerNotInSnapshot, "producer %s is not in the snapshot of slot %d",
			header.ProducerID, header.Slot)
	}
	vrfOutput, ok := vrf.Verify(producer.VRFPublicKey, vrf.Input(header.PrevHash, header.SlotTime, cp.params.NetworkID),
		header.VRFProof)
	if !ok || vrfOutput != header.VRFOutput {
		return nil, errors.Wrapf(ruleerrors.ErrBadVRFProof, "bad VRF proof of producer %s", header.ProducerID)
	}
	if !signing.VerifyBlock(producer.PublicKey, block) {
		return nil, errors.Wrapf(ruleerrors.ErrBadBlockSignature, "bad signature of producer %s", header.ProducerID)
	}

	err = cp.checkEntries(block)
	if err != nil {
		return nil, err
	}
	proofs, err := cp.resolveProofs(block, snapshot)
	if err != nil {
		return nil, err
	}
	err = cp.checkSpends(proofs)
	if err != nil {
		return nil, err
	}

	if merkle.CalculateEntriesRoot(block.Entries) != header.EntriesRoot {
		return nil, errors.Wrapf(ruleerrors.ErrBadMerkleRoot, "entries root mismatch")
	}
	if archiveMultiset(tip.multiset, proofs).Hash() != header.UTXOCommitment {
		return nil, errors.Wrapf(ruleerrors.ErrBadUTXOCommitment, "UTXO commitment mismatch")
	}
	if !rewardsEqual(block.Rewards, calculateRewards(cp.params, snapshot, header.ProducerID)) {
		return nil, errors.Wrapf(ruleerrors.ErrBadRewards, "rewards do not follow the distribution rule")
	}
	if merkle.CalculateRewardsRoot(block.Rewards) != header.RewardsRoot {
		return nil, errors.Wrapf(ruleerrors.ErrBadMerkleRoot, "rewards root mismatch")
	}
	return proofs, nil
}

func (cp *checkpointProducer) checkEntries(block *externalapi.CheckpointBlock) error {
	if len(block.Entries) > cp.params.MaxBlockEntries {
		return errors.Wrapf(ruleerrors.ErrTooManyEntries, "block has %d entries, the maximum is %d",
			len(block.Entries), cp.params.MaxBlockEntries)
	}
	if len(block.Proofs) != 0 && len(block.Proofs) != len(block.Entries) {
		return errors.Wrapf(ruleerrors.ErrMissingProof, "block has %d proofs for %d entries",
			len(block.Proofs), len(block.Entries))
	}
	for i, entry := range block.Entries {
		if i > 0 && !block.Entries[i-1].TransactionID.Less(entry.TransactionID) {
			return errors.Wrapf(ruleerrors.ErrEntriesNotSorted, "entry %s is out of order", entry.TransactionID)
		}
		_, archived, err := cp.proofStore.ArchivedHeight(entry.TransactionID)
		if err != nil {
			return err
		}
		if archived {
			return errors.Wrapf(ruleerrors.ErrAlreadyArchived, "%s is already archived", entry.TransactionID)
		}
		if !cp.anomalyDetector.IsCanonical(entry.TransactionID) {
			return errors.Wrapf(ruleerrors.ErrConflictingProofs, "%s lost a conflict to another proven transaction",
				entry.TransactionID)
		}
	}
	return nil
}

func (cp *checkpointProducer) checkSpends(proofs []*externalapi.FinalityProof) error {
	spent := make(map[externalapi.DomainOutpoint]struct{})
	for _, proof := range proofs {
		if spendsAny(proof.Transaction, spent) {
			return errors.Wrapf(ruleerrors.ErrDoubleSpendInSameBlock, "%s spends an output spent earlier in the block",
				consensushashing.TransactionID(proof.Transaction))
		}
		transactionID := consensushashing.TransactionID(proof.Transaction)
		for _, outpoint := range proof.Transaction.Outpoints() {
			spent[outpoint] = struct{}{}
			err := cp.checkSpender(outpoint, transactionID)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// checkSpender fails if outpoint is already Final or Archived by a
// transaction other than transactionID.
func (cp *checkpointProducer) checkSpender(outpoint externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID) error {

	state, err := cp.utxoCoordinator.Query(outpoint)
	if err != nil {
		if errors.Is(err, ruleerrors.ErrMissingOutput) {
			return nil
		}
		return err
	}
	switch state.Status {
	case externalapi.UTXOStatusFinal, externalapi.UTXOStatusArchived:
		if state.SpenderID != transactionID {
			return errors.Wrapf(ruleerrors.ErrConflictingProofs, "%s spends %s, which is %s",
				transactionID, outpoint, state)
		}
	}
	return nil
}

// resolveProofs returns the proof of every entry: inline in the block,
// from the local store, or requested from peers, in that order.
func (cp *checkpointProducer) resolveProofs(block *externalapi.CheckpointBlock,
	snapshot *externalapi.ValidatorSetSnapshot) ([]*externalapi.FinalityProof, error) {

	proofs := make([]*externalapi.FinalityProof, len(block.Entries))
	var missing []int
	for i, entry := range block.Entries {
		if len(block.Proofs) > 0 {
			err := cp.checkProof(entry, block.Proofs[i])
			if err != nil {
				return nil, err
			}
			proofs[i] = block.Proofs[i]
			continue
		}
		proof, found, err := cp.proofStore.Proof(entry.TransactionID)
		if err != nil {
			return nil, err
		}
		if found && consensushashing.FinalityProofHash(proof) == entry.ProofHash {
			proofs[i] = proof
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return proofs, nil
	}

	peers := proofPeers(snapshot, block.Header.ProducerID, cp.validatorSetManager.LocalValidatorID())
	var lock sync.Mutex
	group := errgroup.Group{}
	group.SetLimit(maxConcurrentProofRequests)
	for _, i := range missing {
		i := i
		entry := block.Entries[i]
		group.Go(func() error {
			proof, err := cp.requestProof(entry, peers)
			if err != nil {
				return err
			}
			lock.Lock()
			proofs[i] = proof
			lock.Unlock()
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		return nil, err
	}
	return proofs, nil
}

// checkProof checks that proof is a valid proof for entry. Proofs already
// held by the local store were verified when they were stored.
func (cp *checkpointProducer) checkProof(entry *externalapi.CheckpointEntry, proof *externalapi.FinalityProof) error {

	if proof == nil || proof.Transaction == nil ||
		consensushashing.TransactionID(proof.Transaction) != entry.TransactionID {
		return errors.Wrapf(ruleerrors.ErrMissingProof, "no proof for entry %s", entry.TransactionID)
	}
	if consensushashing.FinalityProofHash(proof) != entry.ProofHash {
		return errors.Wrapf(ruleerrors.ErrBadProofHash, "proof hash of entry %s does not match", entry.TransactionID)
	}
	stored, found, err := cp.proofStore.Proof(entry.TransactionID)
	if err != nil {
		return err
	}
	if found && consensushashing.FinalityProofHash(stored) == entry.ProofHash {
		return nil
	}
	return cp.proofAssembler.VerifyProof(proof)
}

// requestProof asks peers, one at a time, for the proof of entry.
func (cp *checkpointProducer) requestProof(entry *externalapi.CheckpointEntry,
	peers []externalapi.ValidatorID) (*externalapi.FinalityProof, error) {

	for _, peer := range peers {
		ctx, cancel := context.WithTimeout(context.Background(), cp.params.RoundTimeout)
		proof, err := cp.messageChannel.RequestProof(ctx, peer, entry.TransactionID)
		cancel()
		if err != nil {
			log.Debugf("Proof request for %s to %s failed: %s", entry.TransactionID, peer, err)
			continue
		}
		err = cp.checkProof(entry, proof)
		if err != nil {
			log.Debugf("Peer %s sent a bad proof for %s: %s", peer, entry.TransactionID, err)
			continue
		}
		return proof, nil
	}
	return nil, errors.Wrapf(ruleerrors.ErrMissingProof, "no peer provided the proof of %s", entry.TransactionID)
}

// proofPeers returns the peers to ask for proofs: the producer first,
// then every other snapshot member.
func proofPeers(snapshot *externalapi.ValidatorSetSnapshot, producerID,
	localID externalapi.ValidatorID) []externalapi.ValidatorID {

	peers := []externalapi.ValidatorID{producerID}
	for _, validator := range snapshot.Validators() {
		if validator.ID != producerID && validator.ID != localID {
			peers = append(peers, validator.ID)
		}
	}
	return peers
}
