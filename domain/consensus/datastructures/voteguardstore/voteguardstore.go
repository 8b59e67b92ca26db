package voteguardstore

import (
	"sync"

	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var bucket = database.MakeBucket([]byte("vote-guards"))

// voteGuardStore persists the spender the local validator signed for, per
// output. It is read before every signature, so it is written before the
// signature leaves the node.
type voteGuardStore struct {
	db   database.Database
	lock sync.Mutex
}

// New instantiates a new VoteGuardStore
func New(db database.Database) model.VoteGuardStore {
	return &voteGuardStore{db: db}
}

func guardKey(outpoint externalapi.DomainOutpoint) *database.Key {
	return bucket.Key(serialization.OutpointToKey(outpoint))
}

func (vgs *voteGuardStore) Acquire(outpoints []externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID) (bool, error) {

	vgs.lock.Lock()
	defer vgs.lock.Unlock()

	missing := make([]externalapi.DomainOutpoint, 0, len(outpoints))
	for _, outpoint := range outpoints {
		guardedID, ok, err := vgs.guard(outpoint)
		if err != nil {
			return false, err
		}
		if !ok {
			missing = append(missing, outpoint)
			continue
		}
		if guardedID != transactionID {
			return false, nil
		}
	}
	if len(missing) == 0 {
		return true, nil
	}

	dbTx, err := vgs.db.Begin()
	if err != nil {
		return false, err
	}
	defer dbTx.RollbackUnlessClosed()
	for _, outpoint := range missing {
		err = dbTx.Put(guardKey(outpoint), transactionID[:])
		if err != nil {
			return false, err
		}
	}
	err = dbTx.Commit()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (vgs *voteGuardStore) Guard(outpoint externalapi.DomainOutpoint) (externalapi.DomainTransactionID, bool, error) {
	vgs.lock.Lock()
	defer vgs.lock.Unlock()
	return vgs.guard(outpoint)
}

func (vgs *voteGuardStore) guard(outpoint externalapi.DomainOutpoint) (externalapi.DomainTransactionID, bool, error) {
	idBytes, err := vgs.db.Get(guardKey(outpoint))
	if err != nil {
		if database.IsNotFoundError(err) {
			return externalapi.DomainTransactionID{}, false, nil
		}
		return externalapi.DomainTransactionID{}, false, err
	}
	hash, err := externalapi.NewDomainHashFromByteSlice(idBytes)
	if err != nil {
		return externalapi.DomainTransactionID{}, false, err
	}
	return externalapi.DomainTransactionID(hash), true, nil
}

func (vgs *voteGuardStore) Forget(outpoints []externalapi.DomainOutpoint) error {
	vgs.lock.Lock()
	defer vgs.lock.Unlock()

	dbTx, err := vgs.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	for _, outpoint := range outpoints {
		err = dbTx.Delete(guardKey(outpoint))
		if err != nil {
			return err
		}
	}
	return dbTx.Commit()
}
