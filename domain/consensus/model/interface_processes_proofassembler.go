package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// ProofAssembler accumulates signed votes into finality proofs
type ProofAssembler interface {
	// RegisterTransaction makes transaction known so that votes for it
	// are accepted.
	RegisterTransaction(transaction *externalapi.DomainTransaction)
	ForgetTransaction(transactionID externalapi.DomainTransactionID)

	AddVote(vote *externalapi.SignedVote) error
	Votes(transactionID externalapi.DomainTransactionID) []*externalapi.SignedVote

	VerifyProof(proof *externalapi.FinalityProof) error
	ImportProof(proof *externalapi.FinalityProof) error
	Proof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error)
	IsFinal(transactionID externalapi.DomainTransactionID) bool

	AddFinalityListener(listener FinalityListener)
}

// FinalityListener is notified when a transaction becomes globally final.
// rejected lists the transactions that lost an input to it.
type FinalityListener interface {
	OnTransactionFinalized(proof *externalapi.FinalityProof, rejected []externalapi.DomainTransactionID)
}
