package proofassembler

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/dagconfig"
)

// AddVote validates vote and adds it to its transaction's vote set. The
// vote set crossing the finality threshold finalizes the transaction.
// A vote from a voter already counted returns ErrDuplicateVote and has no
// effect.
func (pa *proofAssembler) AddVote(vote *externalapi.SignedVote) error {
	err := pa.addVote(vote)
	if err != nil {
		if class, ok := ruleerrors.ClassOf(err); ok {
			pa.metrics.VotesRejected.WithLabelValues(class.String()).Inc()
		}
	}
	return err
}

func (pa *proofAssembler) addVote(vote *externalapi.SignedVote) error {
	if vote.NetworkID != pa.networkID {
		return errors.Wrapf(ruleerrors.ErrWrongNetwork, "vote of network %s", vote.NetworkID)
	}

	pa.lock.Lock()
	c, ok := pa.lookup(vote.TransactionID)
	if !ok {
		pa.lock.Unlock()
		return errors.Wrapf(ruleerrors.ErrUnknownTransaction, "vote for unknown transaction %s", vote.TransactionID)
	}
	err := pa.checkDuplicateVote(c, vote)
	pa.lock.Unlock()
	if err != nil {
		return err
	}
	if vote.Commitment != c.commitment {
		return errors.Wrapf(ruleerrors.ErrCommitmentMismatch, "vote of %s commits to %s, expected %s",
			vote.VoterID, vote.Commitment, c.commitment)
	}

	snapshot, err := pa.validatorSetManager.Snapshot(vote.Slot)
	if err != nil {
		return err
	}
	err = pa.verifyVoter(snapshot, vote)
	if err != nil {
		return err
	}

	pa.anomalyDetector.CheckVote(vote, c.inputs)

	pa.lock.Lock()
	err = pa.checkDuplicateVote(c, vote)
	if err != nil {
		pa.lock.Unlock()
		return err
	}
	set, ok := c.voteSets[vote.Slot]
	if !ok {
		set = &voteSet{votes: make(map[externalapi.ValidatorID]*externalapi.SignedVote)}
		c.voteSets[vote.Slot] = set
	}
	set.votes[vote.VoterID] = vote
	set.weight += vote.VoterWeight

	threshold := dagconfig.FinalityThreshold(snapshot.TotalWeight())
	if c.final || set.weight < threshold {
		pa.lock.Unlock()
		log.Tracef("Vote of %s for %s added: %d/%d", vote.VoterID, vote.TransactionID, set.weight, threshold)
		return nil
	}

	proof := buildProof(c.transaction, vote.Slot, set)
	weight := set.weight
	pa.markFinal(c)
	pa.lock.Unlock()

	log.Debugf("Transaction %s reached finality in slot %d with weight %d/%d",
		c.transactionID, vote.Slot, weight, snapshot.TotalWeight())
	return pa.applyProof(proof, weight)
}

func (pa *proofAssembler) checkDuplicateVote(c *candidate, vote *externalapi.SignedVote) error {
	set, ok := c.voteSets[vote.Slot]
	if !ok {
		return nil
	}
	if _, ok := set.votes[vote.VoterID]; ok {
		return errors.Wrapf(ruleerrors.ErrDuplicateVote, "%s already voted for %s in slot %d",
			vote.VoterID, vote.TransactionID, vote.Slot)
	}
	return nil
}

// markFinal moves c out of the pending candidates. It must be called with
// the lock held.
func (pa *proofAssembler) markFinal(c *candidate) {
	c.final = true
	delete(pa.candidates, c.transactionID)
	pa.finalized.Add(c.transactionID, c)
}

func buildProof(transaction *externalapi.DomainTransaction, slot uint64, set *voteSet) *externalapi.FinalityProof {
	votes := make([]*externalapi.SignedVote, 0, len(set.votes))
	for _, vote := range set.votes {
		votes = append(votes, vote)
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].VoterID.Less(votes[j].VoterID) })
	return &externalapi.FinalityProof{Transaction: transaction, Slot: slot, Votes: votes}
}

// verifyVoter checks that the voter is a member of snapshot with the
// claimed weight and that its signature is valid.
func (pa *proofAssembler) verifyVoter(snapshot *externalapi.ValidatorSetSnapshot, vote *externalapi.SignedVote) error {
	member, ok := snapshot.Validator(vote.VoterID)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrVoterNotInSnapshot, "%s is not a member of the validator set of slot %d",
			vote.VoterID, vote.Slot)
	}
	if member.Weight != vote.VoterWeight {
		return errors.Wrapf(ruleerrors.ErrVoterNotInSnapshot, "%s claims weight %d, has %d in slot %d",
			vote.VoterID, vote.VoterWeight, member.Weight, vote.Slot)
	}

	key := verifiedVoteKey{hash: consensushashing.SignedVoteHash(vote), signature: string(vote.Signature)}
	if pa.verifiedVotes.Contains(key) {
		return nil
	}
	if !signing.VerifyVote(member.PublicKey, vote) {
		return errors.Wrapf(ruleerrors.ErrBadVoteSignature, "bad signature of %s for %s",
			vote.VoterID, vote.TransactionID)
	}
	pa.verifiedVotes.Add(key, struct{}{})
	return nil
}

type verifiedVoteKey struct {
	hash      externalapi.DomainHash
	signature string
}
