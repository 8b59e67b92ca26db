package votingengine

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// OnTransactionFinalized stops polling a finalized transaction and rejects
// every candidate that conflicts with it.
func (ve *votingEngine) OnTransactionFinalized(proof *externalapi.FinalityProof,
	rejected []externalapi.DomainTransactionID) {

	winnerID := consensushashing.TransactionID(proof.Transaction)
	losers := ve.rejectLosers(proof, winnerID, rejected)
	ve.releaseInputs(losers)
}

func (ve *votingEngine) rejectLosers(proof *externalapi.FinalityProof, winnerID externalapi.DomainTransactionID,
	rejected []externalapi.DomainTransactionID) []*voteRound {

	ve.lock.Lock()
	defer ve.lock.Unlock()

	reason := errors.Wrapf(ruleerrors.ErrLostPreference, "conflicting %s was finalized", winnerID)
	losers := make(map[externalapi.DomainTransactionID]*voteRound)
	for _, transactionID := range rejected {
		if round, ok := ve.candidates[transactionID]; ok {
			losers[transactionID] = round
			continue
		}
		// The loser reserved an input but is not tracked yet.
		if transactionID != winnerID {
			ve.rejected.Add(transactionID, reason)
		}
	}
	if round, ok := ve.candidates[winnerID]; ok {
		for _, competitor := range ve.competitors(round) {
			losers[competitor.transactionID] = competitor
		}
		ve.untrack(round)
		log.Debugf("Stopped voting on finalized %s after %d rounds", winnerID, round.rounds)
	} else {
		for _, outpoint := range proof.Transaction.Outpoints() {
			set, ok := ve.conflictSets[outpoint]
			if !ok {
				continue
			}
			for transactionID, member := range set.members {
				losers[transactionID] = member
			}
		}
	}

	rounds := make([]*voteRound, 0, len(losers))
	for transactionID, round := range losers {
		if transactionID == winnerID {
			continue
		}
		ve.reject(round, reason, "conflict_final")
		rounds = append(rounds, round)
	}
	return rounds
}
