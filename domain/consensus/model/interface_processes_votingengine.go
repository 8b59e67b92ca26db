package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// VotingEngine runs the per-transaction sampling protocol that produces
// local acceptance
type VotingEngine interface {
	// BeginVoting validates transaction, reserves its inputs and starts
	// polling. Calling it again for a known transaction is a no-op.
	BeginVoting(transaction *externalapi.DomainTransaction) error

	// HandleSampleQuery answers a peer's sample query.
	HandleSampleQuery(transactionIDs []externalapi.DomainTransactionID, wantVote bool) []*externalapi.SampleAnswer

	// Status returns the voting status of a transaction still tracked by
	// the engine, or TxStatusUnknown.
	Status(transactionID externalapi.DomainTransactionID) externalapi.TxStatus

	// IsPreferred returns whether transaction is the preference of every
	// conflict set it belongs to.
	IsPreferred(transactionID externalapi.DomainTransactionID) bool

	FinalityListener
	Start() error
	Stop()
}
