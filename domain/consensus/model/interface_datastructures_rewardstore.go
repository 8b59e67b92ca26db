package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// RewardStore represents the per-validator reward ledger
type RewardStore interface {
	// Credit applies the rewards of the block at height. Crediting the
	// same height twice is a no-op.
	Credit(height uint64, rewards []*externalapi.Reward) error
	Balance(validatorID externalapi.ValidatorID) (uint64, error)
}
