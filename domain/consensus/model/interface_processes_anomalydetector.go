package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// AnomalyDetector watches finality proofs and votes for conflicts
type AnomalyDetector interface {
	// RecordProof registers a verified proof of the given weight. It
	// returns whether the proof is canonical for its conflict group, and
	// the anomaly it raised, if any.
	RecordProof(proof *externalapi.FinalityProof, weight uint64) (bool, *externalapi.Anomaly)

	// Resolve returns the canonical proof of transactionID's conflict
	// group and marks the group's anomalies resolved.
	Resolve(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error)

	IsCanonical(transactionID externalapi.DomainTransactionID) bool
	Anomalies() []*externalapi.Anomaly

	InclusionPaused() bool
	AcknowledgeSafetyViolation()

	CheckVote(vote *externalapi.SignedVote, inputs []externalapi.DomainOutpoint) *externalapi.EquivocationEvidence
	PendingEvidence() []*externalapi.EquivocationEvidence
}
