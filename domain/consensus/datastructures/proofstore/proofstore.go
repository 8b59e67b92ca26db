package proofstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var (
	proofsBucket     = database.MakeBucket([]byte("finality-proofs"))
	unarchivedBucket = database.MakeBucket([]byte("unarchived-proofs"))
	archivedBucket   = database.MakeBucket([]byte("archived-transactions"))
)

// proofStore represents a write-once store of finality proofs
type proofStore struct {
	db    database.Database
	cache *lru.Cache

	// writeLock makes the existence check of PutProof atomic with the
	// write.
	writeLock sync.Mutex
}

// New instantiates a new ProofStore
func New(db database.Database, cacheSize int) (model.ProofStore, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &proofStore{db: db, cache: cache}, nil
}

func (ps *proofStore) PutProof(proof *externalapi.FinalityProof) error {
	ps.writeLock.Lock()
	defer ps.writeLock.Unlock()

	transactionID := consensushashing.TransactionID(proof.Transaction)
	exists, err := ps.HasProof(transactionID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	dbTx, err := ps.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbTx.Put(proofsBucket.Key(transactionID[:]), serialization.FinalityProofToBytes(proof))
	if err != nil {
		return err
	}
	err = dbTx.Put(unarchivedBucket.Key(transactionID[:]), []byte{})
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	ps.cache.Add(transactionID, proof)
	return nil
}

func (ps *proofStore) Proof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, bool, error) {
	if proof, ok := ps.cache.Get(transactionID); ok {
		return proof.(*externalapi.FinalityProof), true, nil
	}
	proofBytes, err := ps.db.Get(proofsBucket.Key(transactionID[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	proof, err := serialization.BytesToFinalityProof(proofBytes)
	if err != nil {
		return nil, false, err
	}
	ps.cache.Add(transactionID, proof)
	return proof, true, nil
}

func (ps *proofStore) HasProof(transactionID externalapi.DomainTransactionID) (bool, error) {
	if ps.cache.Contains(transactionID) {
		return true, nil
	}
	return ps.db.Has(proofsBucket.Key(transactionID[:]))
}

func (ps *proofStore) ForEachProof(handle func(proof *externalapi.FinalityProof) error) error {
	cursor, err := ps.db.Cursor(proofsBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		proofBytes, err := cursor.Value()
		if err != nil {
			return err
		}
		proof, err := serialization.BytesToFinalityProof(proofBytes)
		if err != nil {
			return err
		}
		err = handle(proof)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ps *proofStore) Unarchived() ([]externalapi.DomainTransactionID, error) {
	cursor, err := ps.db.Cursor(unarchivedBucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var transactionIDs []externalapi.DomainTransactionID
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return nil, err
		}
		hash, err := externalapi.NewDomainHashFromByteSlice(key.Suffix())
		if err != nil {
			return nil, err
		}
		transactionIDs = append(transactionIDs, externalapi.DomainTransactionID(hash))
	}
	return transactionIDs, nil
}

func (ps *proofStore) MarkArchived(transactionIDs []externalapi.DomainTransactionID, height uint64) error {
	dbTx, err := ps.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	heightBytes := serialization.Uint64ToKey(height)
	for _, transactionID := range transactionIDs {
		err = dbTx.Delete(unarchivedBucket.Key(transactionID[:]))
		if err != nil {
			return err
		}
		err = dbTx.Put(archivedBucket.Key(transactionID[:]), heightBytes)
		if err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func (ps *proofStore) ArchivedHeight(transactionID externalapi.DomainTransactionID) (uint64, bool, error) {
	heightBytes, err := ps.db.Get(archivedBucket.Key(transactionID[:]))
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	height, err := serialization.KeyToUint64(heightBytes)
	if err != nil {
		return 0, false, err
	}
	return height, true, nil
}
