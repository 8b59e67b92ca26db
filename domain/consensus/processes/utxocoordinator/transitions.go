package utxocoordinator

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
)

// Reserve moves outpoint from Unspent to Reserved by transactionID. It is
// idempotent for the reserving transaction. A transaction that finds the
// output reserved by another is remembered as a contender, so that it is
// reported as rejected once the output is finalized.
func (c *utxoCoordinator) Reserve(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) error {
	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	state, err := c.getState(outpoint)
	if err != nil {
		return err
	}

	switch state.Status {
	case externalapi.UTXOStatusUnspent:
		reservedAt := c.clock.Now().Unix()
		state.Status = externalapi.UTXOStatusReserved
		state.SpenderID = transactionID
		state.ReservedAt = reservedAt
		err = c.utxoStore.PutOutputState(outpoint, state)
		if err != nil {
			return err
		}
		s.addContender(outpoint, transactionID)
		c.trackReservation(outpoint, transactionID, reservedAt)
		log.Tracef("Output %s reserved by %s", outpoint, transactionID)
		return nil

	case externalapi.UTXOStatusReserved:
		if state.SpenderID == transactionID {
			return nil
		}
		s.addContender(outpoint, transactionID)
		return errors.Wrapf(ruleerrors.ErrAlreadyReserved, "output %s is reserved by %s",
			outpoint, state.SpenderID)

	default:
		if state.SpenderID == transactionID {
			return nil
		}
		return errors.Wrapf(ruleerrors.ErrAlreadySpent, "output %s is %s", outpoint, state)
	}
}

// Release drops the reservation of transactionID on outpoint, if it holds
// one, and forgets it as a contender.
func (c *utxoCoordinator) Release(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) error {
	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	return c.release(s, outpoint, transactionID)
}

func (c *utxoCoordinator) release(s *shard, outpoint externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID) error {

	s.removeContender(outpoint, transactionID)

	state, found, err := c.utxoStore.GetOutputState(outpoint)
	if err != nil {
		return err
	}
	if !found || state.Status != externalapi.UTXOStatusReserved || state.SpenderID != transactionID {
		return nil
	}

	state.Status = externalapi.UTXOStatusUnspent
	state.SpenderID = externalapi.DomainTransactionID{}
	state.ReservedAt = 0
	err = c.utxoStore.PutOutputState(outpoint, state)
	if err != nil {
		return err
	}
	c.untrackReservation(outpoint)
	log.Tracef("Output %s released by %s", outpoint, transactionID)
	return nil
}

// Finalize moves outpoint to Final by winner and returns every other
// transaction that reserved or attempted to reserve it. Finalizing an
// output that is already Final or Archived by winner succeeds.
func (c *utxoCoordinator) Finalize(outpoint externalapi.DomainOutpoint,
	winner externalapi.DomainTransactionID) ([]externalapi.DomainTransactionID, error) {

	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	state, err := c.getState(outpoint)
	if err != nil {
		return nil, err
	}
	err = checkFinalizable(outpoint, state, winner)
	if err != nil {
		return nil, err
	}
	if state.Status == externalapi.UTXOStatusUnspent || state.Status == externalapi.UTXOStatusReserved {
		err = c.utxoStore.PutOutputState(outpoint, finalState(state, winner))
		if err != nil {
			return nil, err
		}
	}
	c.untrackReservation(outpoint)
	return dedupTransactionIDs(s.takeLosers(outpoint, winner)), nil
}

func checkFinalizable(outpoint externalapi.DomainOutpoint, state *externalapi.OutputState,
	winner externalapi.DomainTransactionID) error {

	switch state.Status {
	case externalapi.UTXOStatusFinal, externalapi.UTXOStatusArchived:
		if state.SpenderID != winner {
			return errors.Wrapf(ruleerrors.ErrAlreadySpent, "output %s is %s", outpoint, state)
		}
	}
	return nil
}

func finalState(state *externalapi.OutputState, winner externalapi.DomainTransactionID) *externalapi.OutputState {
	final := state.Clone()
	final.Status = externalapi.UTXOStatusFinal
	final.SpenderID = winner
	final.ReservedAt = 0
	return final
}

// Archive moves outpoint from Final by transactionID to Archived at the
// given checkpoint height. Archiving again by the same transaction
// succeeds.
func (c *utxoCoordinator) Archive(outpoint externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID, height uint64) error {

	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	state, err := c.getState(outpoint)
	if err != nil {
		return err
	}
	archived, changed, err := archivedState(outpoint, state, transactionID, height)
	if err != nil || !changed {
		return err
	}
	return c.utxoStore.PutOutputState(outpoint, archived)
}

func archivedState(outpoint externalapi.DomainOutpoint, state *externalapi.OutputState,
	transactionID externalapi.DomainTransactionID, height uint64) (*externalapi.OutputState, bool, error) {

	if state.SpenderID == transactionID {
		switch state.Status {
		case externalapi.UTXOStatusArchived:
			return state, false, nil
		case externalapi.UTXOStatusFinal:
			archived := state.Clone()
			archived.Status = externalapi.UTXOStatusArchived
			archived.ArchivedAt = height
			return archived, true, nil
		}
	}
	return nil, false, errors.Wrapf(ruleerrors.ErrNotFinal, "output %s is %s, not Final(%s)",
		outpoint, state, transactionID)
}
