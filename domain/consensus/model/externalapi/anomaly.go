package externalapi

import "fmt"

// AnomalyKind classifies a detected anomaly.
type AnomalyKind uint8

// Anomaly kinds.
const (
	// AnomalyDuplicateProof is a second proof for an already proven
	// transaction. It is harmless.
	AnomalyDuplicateProof AnomalyKind = iota

	// AnomalySafetyViolation is a proof for a transaction that conflicts
	// with an already proven transaction. It pauses block inclusion.
	AnomalySafetyViolation
)

func (kind AnomalyKind) String() string {
	switch kind {
	case AnomalyDuplicateProof:
		return "DuplicateProof"
	case AnomalySafetyViolation:
		return "SafetyViolation"
	}
	return fmt.Sprintf("AnomalyKind(%d)", uint8(kind))
}

// Anomaly is a record of competing finality proofs.
type Anomaly struct {
	Kind AnomalyKind

	// Outpoint is the contested output of a SafetyViolation.
	Outpoint DomainOutpoint

	// TransactionIDs are the proven transactions involved, in the order
	// their proofs were seen.
	TransactionIDs []DomainTransactionID

	// Weights are the proof weights, parallel to TransactionIDs.
	Weights []uint64

	// Canonical is the transaction whose proof wins the conflict group.
	Canonical DomainTransactionID

	DetectedAt int64
	Resolved   bool
}

// EquivocationEvidence proves that a validator signed votes for two
// conflicting transactions in the same slot.
type EquivocationEvidence struct {
	VoterID  ValidatorID
	Slot     uint64
	Outpoint DomainOutpoint
	VoteA    *SignedVote
	VoteB    *SignedVote
}
