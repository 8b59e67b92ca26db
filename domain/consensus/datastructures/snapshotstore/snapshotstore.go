package snapshotstore

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/infrastructure/db/database"
)

var bucket = database.MakeBucket([]byte("validator-set-snapshots"))

// snapshotStore represents a store of validator set snapshots. Published
// snapshots are immutable, so every snapshot read once stays cached until
// it is pruned.
type snapshotStore struct {
	db    database.Database
	lock  sync.RWMutex
	cache map[uint64]*externalapi.ValidatorSetSnapshot
}

// New instantiates a new SnapshotStore
func New(db database.Database) model.SnapshotStore {
	return &snapshotStore{
		db:    db,
		cache: make(map[uint64]*externalapi.ValidatorSetSnapshot),
	}
}

func slotKey(slot uint64) *database.Key {
	return bucket.Key(serialization.Uint64ToKey(slot))
}

func (ss *snapshotStore) GetSnapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, bool, error) {
	ss.lock.RLock()
	snapshot, ok := ss.cache[slot]
	ss.lock.RUnlock()
	if ok {
		return snapshot, true, nil
	}

	snapshotBytes, err := ss.db.Get(slotKey(slot))
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	snapshot, err = serialization.BytesToSnapshot(snapshotBytes)
	if err != nil {
		return nil, false, err
	}

	ss.lock.Lock()
	ss.cache[slot] = snapshot
	ss.lock.Unlock()
	return snapshot, true, nil
}

func (ss *snapshotStore) PutSnapshot(snapshot *externalapi.ValidatorSetSnapshot) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	existing, ok := ss.cache[snapshot.Slot()]
	if !ok {
		existingBytes, err := ss.db.Get(slotKey(snapshot.Slot()))
		if err != nil && !database.IsNotFoundError(err) {
			return err
		}
		if err == nil {
			existing, err = serialization.BytesToSnapshot(existingBytes)
			if err != nil {
				return err
			}
			ok = true
		}
	}
	if ok {
		if existing.Equal(snapshot) {
			return nil
		}
		return errors.Wrapf(ruleerrors.ErrSnapshotAlreadyPublished, "slot %d", snapshot.Slot())
	}

	err := ss.db.Put(slotKey(snapshot.Slot()), serialization.SnapshotToBytes(snapshot))
	if err != nil {
		return err
	}
	ss.cache[snapshot.Slot()] = snapshot
	return nil
}

func (ss *snapshotStore) PruneBefore(slot uint64) error {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	cursor, err := ss.db.Cursor(bucket)
	if err != nil {
		return err
	}
	var toDelete []*database.Key
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			cursor.Close()
			return err
		}
		keySlot, err := serialization.KeyToUint64(key.Suffix())
		if err != nil {
			cursor.Close()
			return err
		}
		if keySlot >= slot {
			break
		}
		toDelete = append(toDelete, key)
	}
	err = cursor.Close()
	if err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}

	dbTx, err := ss.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	for _, key := range toDelete {
		err = dbTx.Delete(key)
		if err != nil {
			return err
		}
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}

	for cachedSlot := range ss.cache {
		if cachedSlot < slot {
			delete(ss.cache, cachedSlot)
		}
	}
	return nil
}
