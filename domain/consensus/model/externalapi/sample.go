package externalapi

// SampleAnswer is a responder's answer about a single transaction. Vote is
// set only when the responder was asked for a vote, considers the
// transaction valid and is a member of the current snapshot.
type SampleAnswer struct {
	TransactionID DomainTransactionID
	Decision      Decision
	Vote          *SignedVote
}
