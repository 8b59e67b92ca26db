package utxostatestore

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var bucket = database.MakeBucket([]byte("utxo-states"))

// utxoStateStore represents a store of output states
type utxoStateStore struct {
	db    database.Database
	cache *lru.Cache
}

// New instantiates a new UTXOStore
func New(db database.Database, cacheSize int) (model.UTXOStore, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &utxoStateStore{db: db, cache: cache}, nil
}

func outpointKey(outpoint externalapi.DomainOutpoint) *database.Key {
	return bucket.Key(serialization.OutpointToKey(outpoint))
}

func (uss *utxoStateStore) GetOutputState(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, bool, error) {
	if state, ok := uss.cache.Get(outpoint); ok {
		return state.(*externalapi.OutputState).Clone(), true, nil
	}

	stateBytes, err := uss.db.Get(outpointKey(outpoint))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	state, err := serialization.BytesToOutputState(stateBytes)
	if err != nil {
		return nil, false, err
	}
	uss.cache.Add(outpoint, state.Clone())
	return state, true, nil
}

func (uss *utxoStateStore) PutOutputState(outpoint externalapi.DomainOutpoint, state *externalapi.OutputState) error {
	err := uss.db.Put(outpointKey(outpoint), serialization.OutputStateToBytes(state))
	if err != nil {
		uss.cache.Remove(outpoint)
		return err
	}
	uss.cache.Add(outpoint, state.Clone())
	return nil
}

func (uss *utxoStateStore) PutOutputStates(states map[externalapi.DomainOutpoint]*externalapi.OutputState) error {
	dbTx, err := uss.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for outpoint, state := range states {
		err = dbTx.Put(outpointKey(outpoint), serialization.OutputStateToBytes(state))
		if err != nil {
			return err
		}
	}
	err = dbTx.Commit()
	if err != nil {
		for outpoint := range states {
			uss.cache.Remove(outpoint)
		}
		return err
	}
	for outpoint, state := range states {
		uss.cache.Add(outpoint, state.Clone())
	}
	return nil
}

func (uss *utxoStateStore) ReservedOutputs() (map[externalapi.DomainOutpoint]*externalapi.OutputState, error) {
	cursor, err := uss.db.Cursor(bucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	reserved := make(map[externalapi.DomainOutpoint]*externalapi.OutputState)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		value, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		state, err := serialization.BytesToOutputState(value)
		if err != nil {
			return nil, err
		}
		if state.Status != externalapi.UTXOStatusReserved {
			continue
		}
		key, err := cursor.Key()
		if err != nil {
			return nil, err
		}
		outpoint, err := serialization.KeyToOutpoint(key.Suffix())
		if err != nil {
			return nil, err
		}
		reserved[outpoint] = state
	}
	return reserved, nil
}
