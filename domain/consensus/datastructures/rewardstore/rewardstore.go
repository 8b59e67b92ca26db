package rewardstore

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var (
	balancesBucket = database.MakeBucket([]byte("reward-balances"))
	creditedKey    = database.MakeBucket(nil).Key([]byte("reward-credited-height"))
)

// rewardStore is the per-validator reward ledger. The height of the last
// credited block is written in the same batch as the balances, which
// makes crediting a block idempotent across restarts.
type rewardStore struct {
	db   database.Database
	lock sync.Mutex
}

// New instantiates a new RewardStore
func New(db database.Database) model.RewardStore {
	return &rewardStore{db: db}
}

func (rs *rewardStore) Credit(height uint64, rewards []*externalapi.Reward) error {
	rs.lock.Lock()
	defer rs.lock.Unlock()

	creditedHeight, err := rs.creditedHeight()
	if err != nil {
		return err
	}
	if height <= creditedHeight {
		return nil
	}

	balances := make(map[externalapi.ValidatorID]uint64, len(rewards))
	for _, reward := range rewards {
		balance, ok := balances[reward.ValidatorID]
		if !ok {
			balance, err = rs.balance(reward.ValidatorID)
			if err != nil {
				return err
			}
		}
		if balance+reward.Amount < balance {
			return errors.Errorf("reward balance of %s overflows", reward.ValidatorID)
		}
		balances[reward.ValidatorID] = balance + reward.Amount
	}

	dbTx, err := rs.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	for validatorID, balance := range balances {
		err = dbTx.Put(balancesBucket.Key(validatorID[:]), serialization.Uint64ToKey(balance))
		if err != nil {
			return err
		}
	}
	err = dbTx.Put(creditedKey, serialization.Uint64ToKey(height))
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

func (rs *rewardStore) Balance(validatorID externalapi.ValidatorID) (uint64, error) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.balance(validatorID)
}

func (rs *rewardStore) balance(validatorID externalapi.ValidatorID) (uint64, error) {
	balanceBytes, err := rs.db.Get(balancesBucket.Key(validatorID[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, nil
		}
		return 0, err
	}
	return serialization.KeyToUint64(balanceBytes)
}

func (rs *rewardStore) creditedHeight() (uint64, error) {
	heightBytes, err := rs.db.Get(creditedKey)
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, nil
		}
		return 0, err
	}
	return serialization.KeyToUint64(heightBytes)
}
