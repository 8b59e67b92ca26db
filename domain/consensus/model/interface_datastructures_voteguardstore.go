package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// VoteGuardStore persists, per output, the only transaction the local
// validator ever signed a vote for
type VoteGuardStore interface {
	// Acquire records transactionID as the signed spender of every
	// outpoint, atomically. It returns false, and records nothing, if any
	// outpoint is already guarded for another transaction.
	Acquire(outpoints []externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) (bool, error)

	// Guard returns the transaction outpoint is guarded for.
	Guard(outpoint externalapi.DomainOutpoint) (externalapi.DomainTransactionID, bool, error)

	// Forget removes the guards of archived outputs.
	Forget(outpoints []externalapi.DomainOutpoint) error
}
