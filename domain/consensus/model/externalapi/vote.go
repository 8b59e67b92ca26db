package externalapi

// NetworkID names the network a vote, proof or block belongs to.
type NetworkID string

// Decision is a responder's answer to a sample query.
type Decision uint8

// Sample query decisions.
const (
	DecisionUnknown Decision = iota
	DecisionValid
	DecisionInvalid
)

func (d Decision) String() string {
	switch d {
	case DecisionValid:
		return "Valid"
	case DecisionInvalid:
		return "Invalid"
	}
	return "Unknown"
}

// SignedVote is a validator's signed statement that it considers a
// transaction valid. The signature covers every other field.
type SignedVote struct {
	NetworkID     NetworkID
	TransactionID DomainTransactionID
	Commitment    DomainHash
	Slot          uint64
	VoterID       ValidatorID
	VoterWeight   uint64
	Signature     []byte
}

// FinalityProof is a set of distinct signed votes for a single transaction
// whose weight meets the finality threshold of the slot's snapshot.
// Votes are ordered by voter ID.
type FinalityProof struct {
	Transaction *DomainTransaction
	Slot        uint64
	Votes       []*SignedVote
}

// Weight returns the summed voter weight of the proof. It does not
// validate the votes.
func (p *FinalityProof) Weight() uint64 {
	var weight uint64
	for _, vote := range p.Votes {
		weight += vote.VoterWeight
	}
	return weight
}

// TxStatus is the externally visible status of a transaction.
type TxStatus uint8

// Transaction statuses.
const (
	TxStatusUnknown TxStatus = iota
	TxStatusSeen
	TxStatusVoting
	TxStatusFinalized
	TxStatusArchived
	TxStatusRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusSeen:
		return "Seen"
	case TxStatusVoting:
		return "Voting"
	case TxStatusFinalized:
		return "Finalized"
	case TxStatusArchived:
		return "Archived"
	case TxStatusRejected:
		return "Rejected"
	}
	return "Unknown"
}
