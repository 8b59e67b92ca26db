package votingengine

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// The functions in this file, releaseInputs aside, must be called with the
// lock held.

func (ve *votingEngine) addToConflictSet(outpoint externalapi.DomainOutpoint, round *voteRound) {
	set, ok := ve.conflictSets[outpoint]
	if !ok {
		ve.conflictSets[outpoint] = &conflictSet{
			members:    map[externalapi.DomainTransactionID]*voteRound{round.transactionID: round},
			preference: round.transactionID,
		}
		return
	}
	set.members[round.transactionID] = round
	set.updatePreference()
}

// updatePreference makes the member with the highest cumulative count of
// successful rounds the preference, ties going to the lowest transaction
// ID.
func (set *conflictSet) updatePreference() {
	var best *voteRound
	for _, member := range set.members {
		if best == nil || member.cumulative > best.cumulative ||
			(member.cumulative == best.cumulative && member.transactionID.Less(best.transactionID)) {
			best = member
		}
	}
	if best != nil {
		set.preference = best.transactionID
	}
}

// competitors returns every tracked candidate sharing an input with round.
func (ve *votingEngine) competitors(round *voteRound) []*voteRound {
	seen := make(map[externalapi.DomainTransactionID]struct{})
	var competitors []*voteRound
	for _, outpoint := range round.inputs {
		set, ok := ve.conflictSets[outpoint]
		if !ok {
			continue
		}
		for transactionID, member := range set.members {
			if transactionID == round.transactionID {
				continue
			}
			if _, ok := seen[transactionID]; ok {
				continue
			}
			seen[transactionID] = struct{}{}
			competitors = append(competitors, member)
		}
	}
	return competitors
}

// untrack stops polling round and removes it from every conflict set.
func (ve *votingEngine) untrack(round *voteRound) {
	if round.cancel != nil {
		round.cancel()
	}
	delete(ve.candidates, round.transactionID)
	for _, outpoint := range round.inputs {
		set, ok := ve.conflictSets[outpoint]
		if !ok {
			continue
		}
		delete(set.members, round.transactionID)
		if len(set.members) == 0 {
			delete(ve.conflictSets, outpoint)
			continue
		}
		set.updatePreference()
	}
	ve.metrics.ActiveCandidates.Dec()
}

// reject untracks round and remembers why it was rejected. Its
// reservations are released by releaseInputs once the lock is released.
func (ve *votingEngine) reject(round *voteRound, reason error, label string) {
	ve.untrack(round)
	ve.proofAssembler.ForgetTransaction(round.transactionID)
	ve.rejected.Add(round.transactionID, reason)
	ve.metrics.TransactionsRejected.WithLabelValues(label).Inc()
	log.Debugf("Rejected %s: %s", round.transactionID, reason)
}

// releaseInputs drops the reservations of rejected rounds. It must be
// called without the lock held.
func (ve *votingEngine) releaseInputs(rounds []*voteRound) {
	for _, round := range rounds {
		for _, outpoint := range round.inputs {
			err := ve.utxoCoordinator.Release(outpoint, round.transactionID)
			if err != nil {
				log.Errorf("Error releasing %s: %+v", outpoint, err)
			}
		}
	}
}
