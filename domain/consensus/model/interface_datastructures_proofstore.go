package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// ProofStore represents a write-once store of finality proofs, together
// with the archival height of proven transactions
type ProofStore interface {
	// PutProof stores proof unless a proof for its transaction is already
	// stored, in which case it is a no-op.
	PutProof(proof *externalapi.FinalityProof) error
	Proof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, bool, error)
	HasProof(transactionID externalapi.DomainTransactionID) (bool, error)

	// ForEachProof calls handle with every stored proof, in transaction ID
	// order, and stops at the first error.
	ForEachProof(handle func(proof *externalapi.FinalityProof) error) error

	// Unarchived returns the IDs of every proven transaction that no
	// checkpoint block archived yet.
	Unarchived() ([]externalapi.DomainTransactionID, error)

	MarkArchived(transactionIDs []externalapi.DomainTransactionID, height uint64) error
	ArchivedHeight(transactionID externalapi.DomainTransactionID) (uint64, bool, error)
}
