package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// TransactionValidator exposes a set of validation classes, after which
// it's possible to determine whether a transaction is valid
type TransactionValidator interface {
	ValidateTransactionInIsolation(transaction *externalapi.DomainTransaction) error

	// ValidateTransactionInContext checks the transaction against the
	// current output states and returns its fee.
	ValidateTransactionInContext(transaction *externalapi.DomainTransaction) (uint64, error)
}
