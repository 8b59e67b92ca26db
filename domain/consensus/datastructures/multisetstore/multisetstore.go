package multisetstore

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var bucket = database.MakeBucket([]byte("multisets"))

// multisetStore represents a store of Multisets
type multisetStore struct {
	db    database.Database
	cache *lru.Cache
}

// New instantiates a new MultisetStore
func New(db database.Database, cacheSize int) (model.MultisetStore, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &multisetStore{db: db, cache: cache}, nil
}

// Put stores the multiset of the given blockHash
func (ms *multisetStore) Put(blockHash externalapi.DomainHash, multisetBytes []byte) error {
	err := ms.db.Put(bucket.Key(blockHash[:]), multisetBytes)
	if err != nil {
		return err
	}
	ms.cache.Add(blockHash, multisetBytes)
	return nil
}

// Get gets the multiset associated with the given blockHash
func (ms *multisetStore) Get(blockHash externalapi.DomainHash) ([]byte, bool, error) {
	if multisetBytes, ok := ms.cache.Get(blockHash); ok {
		return multisetBytes.([]byte), true, nil
	}
	multisetBytes, err := ms.db.Get(bucket.Key(blockHash[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	ms.cache.Add(blockHash, multisetBytes)
	return multisetBytes, true, nil
}
