package votingengine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"golang.org/x/sync/errgroup"
)

// startPolling must be called with the lock held.
func (ve *votingEngine) startPolling(round *voteRound) {
	ctx, cancel := context.WithCancel(ve.ctx)
	round.cancel = cancel
	ve.wg.Add(1)
	spawn(func() {
		defer ve.wg.Done()
		ve.pollLoop(ctx, round)
	})
}

func (ve *votingEngine) pollLoop(ctx context.Context, round *voteRound) {
	ticker := time.NewTicker(ve.params.RoundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ve.clock.Now().Sub(round.firstSeen) > ve.params.CandidateTTL {
			ve.evict(round)
			return
		}
		err := ve.pollRound(ctx, round)
		switch {
		case ruleerrors.IsClass(err, ruleerrors.ClassTimeout):
			log.Debugf("Retrying %s: %s", round.transactionID, err)
		case err != nil:
			log.Warnf("Polling round of %s failed: %s", round.transactionID, err)
		}
	}
}

func (ve *votingEngine) evict(round *voteRound) {
	ve.lock.Lock()
	_, ok := ve.candidates[round.transactionID]
	if ok {
		ve.reject(round, errors.Wrapf(ruleerrors.ErrCandidateExpired, "%s was not finalized within %s",
			round.transactionID, ve.params.CandidateTTL), "expired")
	}
	ve.lock.Unlock()

	if ok {
		ve.releaseInputs([]*voteRound{round})
	}
}

// effectiveAlpha scales the quorum down when fewer than K validators
// could be sampled: ceil(Alpha * sampled / K), at least one.
func (ve *votingEngine) effectiveAlpha(sampled int) int {
	if sampled >= ve.params.K {
		return ve.params.Alpha
	}
	alpha := (ve.params.Alpha*sampled + ve.params.K - 1) / ve.params.K
	if alpha < 1 {
		return 1
	}
	return alpha
}

// pollRound queries a weighted sample of the current validator set about
// round's transaction and updates its counters. A round that failed
// because the sampled validators did not answer in time returns
// ErrRoundTimedOut.
func (ve *votingEngine) pollRound(ctx context.Context, round *voteRound) error {
	start := time.Now()
	snapshot, err := ve.validatorSetManager.CurrentSnapshot()
	if err != nil {
		return err
	}
	localID := ve.validatorSetManager.LocalValidatorID()
	peers := ve.sample(snapshot.Validators(), localID)

	valid, votes, timedOut := ve.query(ctx, peers, round.transactionID)
	if ctx.Err() != nil {
		return nil
	}
	for _, vote := range votes {
		err := ve.proofAssembler.AddVote(vote)
		if err != nil && !errors.Is(err, ruleerrors.ErrDuplicateVote) {
			log.Debugf("Vote of %s for %s refused: %s", vote.VoterID, vote.TransactionID, err)
		}
	}

	// A validator alone in the set is the whole network.
	alpha := ve.effectiveAlpha(len(peers))
	successful := len(peers) == 0 || valid >= alpha
	result := "success"
	switch {
	case successful:
	case timedOut:
		result = "timeout"
	default:
		result = "failure"
	}
	ve.metrics.VotingRounds.WithLabelValues(result).Inc()
	ve.metrics.RoundDuration.Observe(time.Since(start).Seconds())

	castVote, rejected := ve.recordRound(round, successful)
	ve.releaseInputs(rejected)
	if castVote {
		ve.castSelfVote(round, snapshot)
	}
	if !successful && timedOut {
		return errors.Wrapf(ruleerrors.ErrRoundTimedOut, "%d of %d sampled validators answered Valid "+
			"within %s, the quorum is %d", valid, len(peers), ve.params.RoundTimeout, alpha)
	}
	return nil
}

// query fans a sample query out to peers and waits for every answer or
// the round timeout. It returns the number of Valid answers, the votes
// attached to them and whether the timeout cut the round short.
func (ve *votingEngine) query(ctx context.Context, peers []*externalapi.Validator,
	transactionID externalapi.DomainTransactionID) (int, []*externalapi.SignedVote, bool) {

	roundCtx, cancel := context.WithTimeout(ctx, ve.params.RoundTimeout)
	defer cancel()

	var lock sync.Mutex
	valid := 0
	var votes []*externalapi.SignedVote

	group := errgroup.Group{}
	for _, peer := range peers {
		peerID := peer.ID
		group.Go(func() error {
			answers, err := ve.messageChannel.Query(roundCtx, peerID,
				[]externalapi.DomainTransactionID{transactionID}, true)
			if err != nil {
				log.Tracef("Query to %s failed: %s", peerID, err)
				return nil
			}
			for _, answer := range answers {
				if answer.TransactionID != transactionID || answer.Decision != externalapi.DecisionValid {
					continue
				}
				lock.Lock()
				valid++
				if answer.Vote != nil {
					votes = append(votes, answer.Vote)
				}
				lock.Unlock()
				break
			}
			return nil
		})
	}
	_ = group.Wait()
	return valid, votes, errors.Is(roundCtx.Err(), context.DeadlineExceeded)
}

// recordRound applies a round's result to round's counters. It returns
// whether the local validator should cast its own vote, and the
// competitors rejected by an acceptance.
func (ve *votingEngine) recordRound(round *voteRound, successful bool) (bool, []*voteRound) {
	ve.lock.Lock()
	defer ve.lock.Unlock()

	if _, ok := ve.candidates[round.transactionID]; !ok {
		return false, nil
	}

	round.rounds++
	if !successful {
		round.consecutive = 0
	} else {
		round.consecutive++
		round.cumulative++
		for _, outpoint := range round.inputs {
			if set, ok := ve.conflictSets[outpoint]; ok {
				set.updatePreference()
			}
		}
	}

	var rejected []*voteRound
	if !round.accepted && round.consecutive >= ve.params.Beta && ve.isPreferred(round) {
		rejected = ve.accept(round)
	}
	return round.accepted && ve.isPreferred(round), rejected
}

// accept marks round locally accepted and rejects every tracked
// competitor. It must be called with the lock held.
func (ve *votingEngine) accept(round *voteRound) []*voteRound {
	round.accepted = true
	ve.metrics.LocalAcceptances.Inc()
	log.Debugf("Locally accepted %s after %d rounds", round.transactionID, round.rounds)

	competitors := ve.competitors(round)
	for _, competitor := range competitors {
		ve.reject(competitor, errors.Wrapf(ruleerrors.ErrLostPreference, "%s was accepted instead",
			round.transactionID), "lost_preference")
	}
	return competitors
}

// castSelfVote adds the local validator's vote for round to the proof
// assembler, at most once per slot.
func (ve *votingEngine) isTracked(round *voteRound) bool {
	ve.lock.RLock()
	defer ve.lock.RUnlock()
	return ve.candidates[round.transactionID] == round
}

func (ve *votingEngine) castSelfVote(round *voteRound, snapshot *externalapi.ValidatorSetSnapshot) {
	vote, err := ve.selfVote(round, snapshot)
	if err != nil {
		log.Errorf("Error signing vote for %s: %+v", round.transactionID, err)
		return
	}
	if vote == nil {
		return
	}
	err = ve.proofAssembler.AddVote(vote)
	if err != nil && !errors.Is(err, ruleerrors.ErrDuplicateVote) {
		log.Warnf("Own vote for %s refused: %s", round.transactionID, err)
	}
}

func (ve *votingEngine) selfVote(round *voteRound,
	snapshot *externalapi.ValidatorSetSnapshot) (*externalapi.SignedVote, error) {

	voteLock := ve.voteLockOf(round.transactionID)
	voteLock.Lock()
	defer voteLock.Unlock()

	if !ve.isTracked(round) {
		return nil, nil
	}
	if round.selfVoteSlot == snapshot.Slot()+1 {
		return nil, nil
	}
	vote, err := ve.localVote(round, snapshot)
	if err != nil || vote == nil {
		return nil, err
	}
	round.selfVoteSlot = snapshot.Slot() + 1
	return vote, nil
}

// localVote returns the local validator's signed vote for round in the
// slot of snapshot, or nil if the local validator may not vote for it.
// A vote is only ever signed for one spender of each output, even across
// restarts. It must be called with the vote lock of round's transaction
// held, and without the lock.
func (ve *votingEngine) localVote(round *voteRound,
	snapshot *externalapi.ValidatorSetSnapshot) (*externalapi.SignedVote, error) {

	if ve.signingKey == nil {
		return nil, nil
	}
	member, ok := snapshot.Validator(ve.validatorSetManager.LocalValidatorID())
	if !ok {
		return nil, nil
	}
	if round.localVote != nil && round.localVote.Slot == snapshot.Slot() {
		return round.localVote, nil
	}

	acquired, err := ve.voteGuardStore.Acquire(round.inputs, round.transactionID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		log.Warnf("Not voting for %s: an input was already voted for another spender", round.transactionID)
		return nil, nil
	}

	vote := &externalapi.SignedVote{
		NetworkID:     ve.params.NetworkID,
		TransactionID: round.transactionID,
		Commitment:    consensushashing.TransactionCommitment(round.transaction),
		Slot:          snapshot.Slot(),
		VoterID:       member.ID,
		VoterWeight:   member.Weight,
	}
	err = signing.SignVote(ve.signingKey, vote)
	if err != nil {
		return nil, err
	}
	round.localVote = vote
	return vote, nil
}
