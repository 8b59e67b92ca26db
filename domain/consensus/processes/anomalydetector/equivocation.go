package anomalydetector

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

type voteKey struct {
	voterID  externalapi.ValidatorID
	slot     uint64
	outpoint externalapi.DomainOutpoint
}

// CheckVote remembers the inputs vote commits its voter to, and returns
// evidence if the voter already signed a conflicting transaction in the
// same slot.
func (ad *anomalyDetector) CheckVote(vote *externalapi.SignedVote,
	inputs []externalapi.DomainOutpoint) *externalapi.EquivocationEvidence {

	ad.lock.Lock()
	defer ad.lock.Unlock()

	ad.pruneVotes()
	if vote.Slot < ad.oldestRetainedSlot() {
		return nil
	}

	var evidence *externalapi.EquivocationEvidence
	for _, outpoint := range inputs {
		key := voteKey{voterID: vote.VoterID, slot: vote.Slot, outpoint: outpoint}
		existing, ok := ad.votes[key]
		if !ok {
			ad.votes[key] = vote
			continue
		}
		if existing.TransactionID == vote.TransactionID || evidence != nil {
			continue
		}
		evidence = &externalapi.EquivocationEvidence{
			VoterID:  vote.VoterID,
			Slot:     vote.Slot,
			Outpoint: outpoint,
			VoteA:    existing,
			VoteB:    vote,
		}
	}
	if evidence == nil {
		return nil
	}

	for _, known := range ad.evidence {
		if known.VoterID == evidence.VoterID && known.Slot == evidence.Slot &&
			known.Outpoint == evidence.Outpoint && known.VoteB.TransactionID == vote.TransactionID {
			return known
		}
	}
	ad.evidence = append(ad.evidence, evidence)
	ad.metrics.EquivocationsDetected.Inc()
	log.Warnf("Validator %s equivocated in slot %d on %s: voted for both %s and %s",
		evidence.VoterID, evidence.Slot, evidence.Outpoint,
		evidence.VoteA.TransactionID, evidence.VoteB.TransactionID)
	return evidence
}

func (ad *anomalyDetector) oldestRetainedSlot() uint64 {
	currentSlot := ad.params.SlotAt(ad.clock.Now())
	if currentSlot < ad.params.EvidenceMaxAge {
		return 0
	}
	return currentSlot - ad.params.EvidenceMaxAge
}

// pruneVotes drops the votes and evidence of slots that aged out. It only
// scans when the oldest retained slot moved.
func (ad *anomalyDetector) pruneVotes() {
	oldest := ad.oldestRetainedSlot()
	if oldest <= ad.prunedBelow {
		return
	}
	ad.prunedBelow = oldest
	for key := range ad.votes {
		if key.slot < oldest {
			delete(ad.votes, key)
		}
	}
	retained := ad.evidence[:0]
	for _, evidence := range ad.evidence {
		if evidence.Slot >= oldest {
			retained = append(retained, evidence)
		}
	}
	ad.evidence = retained
}

// PendingEvidence returns the equivocation evidence that has not aged out.
func (ad *anomalyDetector) PendingEvidence() []*externalapi.EquivocationEvidence {
	ad.lock.Lock()
	defer ad.lock.Unlock()

	ad.pruneVotes()
	return append([]*externalapi.EquivocationEvidence(nil), ad.evidence...)
}
