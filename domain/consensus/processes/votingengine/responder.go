package votingengine

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// HandleSampleQuery answers a peer's sample query. Votes are attached to
// Valid answers when wantVote is set and the local validator is a member
// of the current snapshot.
func (ve *votingEngine) HandleSampleQuery(transactionIDs []externalapi.DomainTransactionID,
	wantVote bool) []*externalapi.SampleAnswer {

	var snapshot *externalapi.ValidatorSetSnapshot
	if wantVote && ve.signingKey != nil {
		var err error
		snapshot, err = ve.validatorSetManager.CurrentSnapshot()
		if err != nil {
			log.Debugf("Answering without votes: %s", err)
			snapshot = nil
		}
	}

	answers := make([]*externalapi.SampleAnswer, len(transactionIDs))
	for i, transactionID := range transactionIDs {
		answers[i] = ve.answer(transactionID, snapshot)
	}
	return answers
}

func (ve *votingEngine) answer(transactionID externalapi.DomainTransactionID,
	snapshot *externalapi.ValidatorSetSnapshot) *externalapi.SampleAnswer {

	answer := &externalapi.SampleAnswer{TransactionID: transactionID, Decision: externalapi.DecisionUnknown}
	if ve.proofAssembler.IsFinal(transactionID) {
		answer.Decision = externalapi.DecisionValid
		return answer
	}

	ve.lock.RLock()
	round, ok := ve.candidates[transactionID]
	preferred := ok && ve.isPreferred(round)
	ve.lock.RUnlock()

	if !ok {
		if ve.rejected.Contains(transactionID) {
			answer.Decision = externalapi.DecisionInvalid
		}
		return answer
	}
	if !preferred {
		answer.Decision = externalapi.DecisionInvalid
		return answer
	}

	answer.Decision = externalapi.DecisionValid
	if snapshot != nil {
		vote, err := ve.answerVote(round, snapshot)
		if err != nil {
			log.Errorf("Error signing vote for %s: %+v", transactionID, err)
		}
		answer.Vote = vote
	}
	return answer
}

// answerVote returns the local vote to attach to a Valid answer about
// round, under the vote lock of its transaction.
func (ve *votingEngine) answerVote(round *voteRound,
	snapshot *externalapi.ValidatorSetSnapshot) (*externalapi.SignedVote, error) {

	voteLock := ve.voteLockOf(round.transactionID)
	voteLock.Lock()
	defer voteLock.Unlock()

	if !ve.isTracked(round) {
		return nil, nil
	}
	return ve.localVote(round, snapshot)
}
