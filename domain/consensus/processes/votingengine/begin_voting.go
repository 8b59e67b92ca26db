package votingengine

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// BeginVoting validates transaction, reserves its inputs and starts
// polling it. An input reserved by another transaction makes this one a
// competitor for it rather than failing. Relaying the transaction is left
// to the caller.
func (ve *votingEngine) BeginVoting(transaction *externalapi.DomainTransaction) error {
	transactionID := consensushashing.TransactionID(transaction)

	if ve.isKnown(transactionID) {
		return nil
	}
	if reason, ok := ve.rejected.Get(transactionID); ok {
		return errors.Wrapf(reason.(error), "transaction %s was rejected", transactionID)
	}
	if ve.proofAssembler.IsFinal(transactionID) {
		return nil
	}

	err := ve.transactionValidator.ValidateTransactionInIsolation(transaction)
	if err != nil {
		return err
	}
	_, err = ve.transactionValidator.ValidateTransactionInContext(transaction)
	if err != nil {
		return err
	}
	return ve.track(transaction, transactionID)
}

// track reserves the inputs of transaction and starts polling it.
// Reservations are taken before the lock, they are idempotent for the
// reserving transaction.
func (ve *votingEngine) track(transaction *externalapi.DomainTransaction,
	transactionID externalapi.DomainTransactionID) error {

	inputs := transaction.Outpoints()
	err := ve.reserveInputs(inputs, transactionID)
	if err != nil {
		return err
	}

	round := &voteRound{
		transaction:   transaction,
		transactionID: transactionID,
		inputs:        inputs,
		firstSeen:     ve.clock.Now(),
	}
	err = ve.addCandidate(round)
	if err != nil {
		ve.releaseInputs([]*voteRound{round})
		return err
	}
	return nil
}

func (ve *votingEngine) addCandidate(round *voteRound) error {
	ve.lock.Lock()
	defer ve.lock.Unlock()

	transactionID := round.transactionID
	if _, ok := ve.candidates[transactionID]; ok {
		return nil
	}
	// A conflicting transaction may have been finalized while the inputs
	// were reserved.
	if reason, ok := ve.rejected.Get(transactionID); ok {
		return errors.Wrapf(reason.(error), "transaction %s was rejected", transactionID)
	}

	ve.candidates[transactionID] = round
	for _, outpoint := range round.inputs {
		ve.addToConflictSet(outpoint, round)
	}
	ve.proofAssembler.RegisterTransaction(round.transaction)
	ve.metrics.ActiveCandidates.Inc()
	log.Debugf("Started voting on %s", transactionID)

	if ve.started {
		ve.startPolling(round)
	}
	return nil
}

func (ve *votingEngine) reserveInputs(inputs []externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID) error {

	for i, outpoint := range inputs {
		err := ve.utxoCoordinator.Reserve(outpoint, transactionID)
		if err == nil || errors.Is(err, ruleerrors.ErrAlreadyReserved) {
			continue
		}
		for _, reserved := range inputs[:i] {
			releaseErr := ve.utxoCoordinator.Release(reserved, transactionID)
			if releaseErr != nil {
				log.Errorf("Error releasing %s: %+v", reserved, releaseErr)
			}
		}
		return err
	}
	return nil
}

func (ve *votingEngine) isKnown(transactionID externalapi.DomainTransactionID) bool {
	ve.lock.RLock()
	defer ve.lock.RUnlock()
	_, ok := ve.candidates[transactionID]
	return ok
}
