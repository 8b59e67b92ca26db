package proofassembler

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/dagconfig"
)

// VerifyProof checks proof against the snapshot of its slot and returns
// nothing but the verdict. It reads no state other than snapshots.
func (pa *proofAssembler) VerifyProof(proof *externalapi.FinalityProof) error {
	_, err := pa.verifyProof(proof)
	return err
}

func (pa *proofAssembler) verifyProof(proof *externalapi.FinalityProof) (uint64, error) {
	if proof.Transaction == nil || len(proof.Votes) == 0 {
		return 0, errors.Wrapf(ruleerrors.ErrInsufficientWeight, "proof carries no votes")
	}
	transactionID := consensushashing.TransactionID(proof.Transaction)
	commitment := consensushashing.TransactionCommitment(proof.Transaction)

	for i, vote := range proof.Votes {
		if vote.NetworkID != pa.networkID {
			return 0, errors.Wrapf(ruleerrors.ErrWrongNetwork, "proof vote of network %s", vote.NetworkID)
		}
		if vote.TransactionID != transactionID || vote.Commitment != commitment || vote.Slot != proof.Slot {
			return 0, errors.Wrapf(ruleerrors.ErrInconsistentProof, "vote %d of the proof of %s "+
				"disagrees on the transaction or slot", i, transactionID)
		}
		if i == 0 {
			continue
		}
		previous := proof.Votes[i-1].VoterID
		if previous == vote.VoterID {
			return 0, errors.Wrapf(ruleerrors.ErrDuplicateVoter, "%s votes twice in the proof of %s",
				vote.VoterID, transactionID)
		}
		if !previous.Less(vote.VoterID) {
			return 0, errors.Wrapf(ruleerrors.ErrInconsistentProof, "votes of the proof of %s "+
				"are not ordered by voter", transactionID)
		}
	}

	snapshot, err := pa.validatorSetManager.Snapshot(proof.Slot)
	if err != nil {
		return 0, err
	}
	var weight uint64
	for _, vote := range proof.Votes {
		err = pa.verifyVoter(snapshot, vote)
		if err != nil {
			return 0, err
		}
		weight += vote.VoterWeight
	}

	threshold := dagconfig.FinalityThreshold(snapshot.TotalWeight())
	if weight < threshold {
		return 0, errors.Wrapf(ruleerrors.ErrInsufficientWeight, "proof of %s has weight %d, "+
			"below the threshold %d of slot %d", transactionID, weight, threshold, proof.Slot)
	}
	return weight, nil
}

// ImportProof verifies a proof received from a peer or a checkpoint block
// and applies it. A proof of an already proven transaction is only
// recorded for anomaly detection.
func (pa *proofAssembler) ImportProof(proof *externalapi.FinalityProof) error {
	weight, err := pa.verifyProof(proof)
	if err != nil {
		return err
	}
	transactionID := consensushashing.TransactionID(proof.Transaction)

	hasProof, err := pa.proofStore.HasProof(transactionID)
	if err != nil {
		return err
	}
	if hasProof {
		pa.anomalyDetector.RecordProof(proof, weight)
		return nil
	}

	pa.lock.Lock()
	c, ok := pa.lookup(transactionID)
	if !ok {
		c = newCandidate(proof.Transaction)
	}
	pa.markFinal(c)
	pa.lock.Unlock()

	log.Debugf("Imported the finality proof of %s with weight %d", transactionID, weight)
	return pa.applyProof(proof, weight)
}

// applyProof records a proof of a newly final transaction, applies it to
// the output states if it is canonical, and notifies the listeners. A
// proof that cannot be applied because of a conflict is retained for
// audit and reported as a SafetyViolation.
func (pa *proofAssembler) applyProof(proof *externalapi.FinalityProof, weight uint64) error {
	transactionID := consensushashing.TransactionID(proof.Transaction)

	canonical, anomaly := pa.anomalyDetector.RecordProof(proof, weight)
	if !canonical {
		log.Warnf("Proof of %s loses a conflict and is not applied", transactionID)
		err := pa.proofStore.PutProof(proof)
		if err != nil {
			return err
		}
		if anomaly == nil {
			return errors.Wrapf(ruleerrors.ErrConflictingProofs, "proof of %s loses a conflict", transactionID)
		}
		return ruleerrors.NewErrSafetyViolation(anomaly.Outpoint, anomaly.TransactionIDs)
	}

	rejected, err := pa.utxoCoordinator.FinalizeTransaction(proof.Transaction)
	if errors.Is(err, ruleerrors.ErrAlreadySpent) {
		return pa.retainConflictingProof(proof)
	}
	if err != nil {
		pa.unmarkFinal(transactionID)
		return err
	}

	err = pa.proofStore.PutProof(proof)
	if err != nil {
		return err
	}
	pa.metrics.TransactionsFinalized.Inc()
	pa.notifyFinalized(proof, rejected)
	return nil
}

// retainConflictingProof handles a proof whose inputs are already final
// for other transactions. A finalized output is never reverted, so the
// proof is only stored, and the proofs of the finalized spenders are
// recorded so that the detector raises the violation and pauses
// inclusion.
func (pa *proofAssembler) retainConflictingProof(proof *externalapi.FinalityProof) error {
	transactionID := consensushashing.TransactionID(proof.Transaction)

	var conflictOutpoint externalapi.DomainOutpoint
	var transactionIDs []externalapi.DomainTransactionID
	for _, outpoint := range proof.Transaction.Outpoints() {
		state, err := pa.utxoCoordinator.Query(outpoint)
		if err != nil {
			return err
		}
		if state.Status != externalapi.UTXOStatusFinal && state.Status != externalapi.UTXOStatusArchived {
			continue
		}
		if state.SpenderID == transactionID {
			continue
		}
		if len(transactionIDs) == 0 {
			conflictOutpoint = outpoint
		}
		transactionIDs = append(transactionIDs, state.SpenderID)

		spenderProof, found, err := pa.proofStore.Proof(state.SpenderID)
		if err != nil {
			return err
		}
		if !found {
			log.Criticalf("Output %s is final for %s, which has no stored proof", outpoint, state.SpenderID)
			continue
		}
		pa.anomalyDetector.RecordProof(spenderProof, proofWeight(spenderProof))
	}
	transactionIDs = append(transactionIDs, transactionID)

	log.Criticalf("Proof of %s conflicts with finalized outputs and is retained without being applied",
		transactionID)
	err := pa.proofStore.PutProof(proof)
	if err != nil {
		return err
	}
	return ruleerrors.NewErrSafetyViolation(conflictOutpoint, transactionIDs)
}

// proofWeight returns the weight of a proof that was verified when it
// was stored.
func proofWeight(proof *externalapi.FinalityProof) uint64 {
	var weight uint64
	for _, vote := range proof.Votes {
		weight += vote.VoterWeight
	}
	return weight
}

// restoreProofs records every stored proof in the anomaly detector, so
// that a conflict with a proof imported before a restart is detected.
func (pa *proofAssembler) restoreProofs() error {
	restored := 0
	err := pa.proofStore.ForEachProof(func(proof *externalapi.FinalityProof) error {
		pa.anomalyDetector.RecordProof(proof, proofWeight(proof))
		restored++
		return nil
	})
	if err != nil {
		return err
	}
	log.Debugf("Restored %d finality proofs into the anomaly detector", restored)
	return nil
}

// unmarkFinal reverts markFinal for a proof that could not be applied, so
// that it is accepted again once its inputs are known.
func (pa *proofAssembler) unmarkFinal(transactionID externalapi.DomainTransactionID) {
	pa.lock.Lock()
	defer pa.lock.Unlock()

	cached, ok := pa.finalized.Get(transactionID)
	if !ok {
		return
	}
	c := cached.(*candidate)
	c.final = false
	pa.finalized.Remove(transactionID)
	pa.candidates[transactionID] = c
}
