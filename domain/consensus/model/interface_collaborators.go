package model

import (
	"context"
	"time"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// MessageChannel is the best-effort transport to other validators. Any
// message may be dropped, delayed or duplicated.
type MessageChannel interface {
	Query(ctx context.Context, peer externalapi.ValidatorID, transactionIDs []externalapi.DomainTransactionID,
		wantVote bool) ([]*externalapi.SampleAnswer, error)
	RequestProof(ctx context.Context, peer externalapi.ValidatorID,
		transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error)

	BroadcastProof(proof *externalapi.FinalityProof)
	BroadcastBlock(block *externalapi.CheckpointBlock)
	RelayTransaction(transaction *externalapi.DomainTransaction)
}

// MessageHandler handles the messages a MessageChannel delivers from
// other validators
type MessageHandler interface {
	HandleSampleQuery(transactionIDs []externalapi.DomainTransactionID, wantVote bool) []*externalapi.SampleAnswer
	HandleProof(proof *externalapi.FinalityProof) error
	HandleBlock(block *externalapi.CheckpointBlock) error
	HandleTransaction(transaction *externalapi.DomainTransaction) error
	HandleProofRequest(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error)
}

// EligibilitySource reports whether a validator passes heartbeat
// attestation for a slot.
type EligibilitySource interface {
	IsEligible(validatorID externalapi.ValidatorID, slot uint64) bool
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
