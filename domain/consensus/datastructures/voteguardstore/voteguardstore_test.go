package voteguardstore

import (
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
)

func TestAcquireSurvivesRestart(t *testing.T) {
	path := t.TempDir()
	db := testutils.OpenTestDatabaseAt(t, path)
	store := New(db)

	shared := externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID{1}, Index: 0}
	other := externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID{1}, Index: 1}
	txA := externalapi.DomainTransactionID{0xa}
	txB := externalapi.DomainTransactionID{0xb}

	ok, err := store.Acquire([]externalapi.DomainOutpoint{shared}, txA)
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%t err=%+v", ok, err)
	}
	ok, err = store.Acquire([]externalapi.DomainOutpoint{shared}, txA)
	if err != nil || !ok {
		t.Fatalf("re-acquiring for the same transaction: ok=%t err=%+v", ok, err)
	}

	db.Close()
	store = New(testutils.OpenTestDatabaseAt(t, path))

	ok, err = store.Acquire([]externalapi.DomainOutpoint{other, shared}, txB)
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if ok {
		t.Fatalf("a restarted store allowed signing a conflicting transaction")
	}
	_, guarded, err := store.Guard(other)
	if err != nil || guarded {
		t.Fatalf("a refused Acquire must not guard any output: guarded=%t err=%+v", guarded, err)
	}

	err = store.Forget([]externalapi.DomainOutpoint{shared})
	if err != nil {
		t.Fatalf("Forget: %+v", err)
	}
	ok, err = store.Acquire([]externalapi.DomainOutpoint{shared}, txB)
	if err != nil || !ok {
		t.Fatalf("Acquire after Forget: ok=%t err=%+v", ok, err)
	}
}
