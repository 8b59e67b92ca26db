package snapshotstore

import (
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
)

func snapshot(t *testing.T, slot uint64, weights ...uint64) *externalapi.ValidatorSetSnapshot {
	validators := make([]*externalapi.Validator, len(weights))
	for i, weight := range weights {
		validators[i] = &externalapi.Validator{
			ID:        externalapi.ValidatorID{byte(i + 1)},
			PublicKey: []byte{byte(i + 1)},
			Weight:    weight,
		}
	}
	snapshot, err := externalapi.NewValidatorSetSnapshot(slot, validators)
	if err != nil {
		t.Fatalf("NewValidatorSetSnapshot: %+v", err)
	}
	return snapshot
}

func TestPutSnapshotIsWriteOnce(t *testing.T) {
	store := New(testutils.OpenTestDatabase(t))

	err := store.PutSnapshot(snapshot(t, 98, 40, 30, 20, 10))
	if err != nil {
		t.Fatalf("PutSnapshot: %+v", err)
	}
	err = store.PutSnapshot(snapshot(t, 98, 40, 30, 20, 10))
	if err != nil {
		t.Fatalf("republishing an identical snapshot: %+v", err)
	}
	err = store.PutSnapshot(snapshot(t, 98, 40, 30))
	if !ruleerrors.IsClass(err, ruleerrors.ClassInvalid) {
		t.Fatalf("expected a different snapshot for slot 98 to be refused, got %+v", err)
	}

	stored, ok, err := store.GetSnapshot(98)
	if err != nil || !ok {
		t.Fatalf("GetSnapshot: ok=%t err=%+v", ok, err)
	}
	if stored.TotalWeight() != 100 {
		t.Fatalf("expected total weight 100, got %d", stored.TotalWeight())
	}
	_, ok, err = store.GetSnapshot(100)
	if err != nil || ok {
		t.Fatalf("expected no snapshot for slot 100, got ok=%t err=%+v", ok, err)
	}
}

func TestPruneBefore(t *testing.T) {
	db := testutils.OpenTestDatabase(t)
	store := New(db)
	for slot := uint64(1); slot <= 5; slot++ {
		err := store.PutSnapshot(snapshot(t, slot, 1))
		if err != nil {
			t.Fatalf("PutSnapshot: %+v", err)
		}
	}
	err := store.PruneBefore(4)
	if err != nil {
		t.Fatalf("PruneBefore: %+v", err)
	}

	// A fresh store bypasses the cache.
	reopened := New(db)
	for slot := uint64(1); slot <= 5; slot++ {
		_, ok, err := reopened.GetSnapshot(slot)
		if err != nil {
			t.Fatalf("GetSnapshot: %+v", err)
		}
		if ok != (slot >= 4) {
			t.Fatalf("slot %d: expected held=%t", slot, slot >= 4)
		}
	}
}
