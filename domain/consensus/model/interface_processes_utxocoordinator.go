package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// UTXOCoordinator owns the state machine of every output
type UTXOCoordinator interface {
	Reserve(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) error
	Finalize(outpoint externalapi.DomainOutpoint, winner externalapi.DomainTransactionID) ([]externalapi.DomainTransactionID, error)
	Archive(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID, height uint64) error
	Query(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, error)
	Release(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) error

	// FinalizeTransaction finalizes every input of transaction and
	// creates its outputs. It returns the transactions that lost any of
	// the inputs.
	FinalizeTransaction(transaction *externalapi.DomainTransaction) ([]externalapi.DomainTransactionID, error)
	ArchiveTransaction(transaction *externalapi.DomainTransaction, height uint64) error

	// AddGenesisOutputs creates the outputs of an input-less genesis
	// transaction that do not exist yet.
	AddGenesisOutputs(transaction *externalapi.DomainTransaction) error

	Start() error
	Stop()
}
