package multisetstore

import (
	"bytes"
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/multiset"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
)

func TestMultisetSurvivesRestart(t *testing.T) {
	path := t.TempDir()
	db := testutils.OpenTestDatabaseAt(t, path)
	store, err := New(db, 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	ms := multiset.New()
	ms.AddSpend(externalapi.DomainOutpoint{TransactionID: externalapi.DomainTransactionID{1}, Index: 3},
		externalapi.DomainTransactionID{2})
	blockHash := externalapi.DomainHash{7}
	err = store.Put(blockHash, ms.Serialize())
	if err != nil {
		t.Fatalf("Put: %+v", err)
	}
	err = db.Close()
	if err != nil {
		t.Fatalf("Close: %+v", err)
	}

	store, err = New(testutils.OpenTestDatabaseAt(t, path), 10)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	multisetBytes, found, err := store.Get(blockHash)
	if err != nil || !found {
		t.Fatalf("Get: %t, %+v", found, err)
	}
	if !bytes.Equal(multisetBytes, ms.Serialize()) {
		t.Fatalf("multiset changed across restart")
	}
	restored, err := multiset.FromBytes(multisetBytes)
	if err != nil {
		t.Fatalf("FromBytes: %+v", err)
	}
	if restored.Hash() != ms.Hash() {
		t.Fatalf("restored multiset hash differs")
	}

	_, found, err = store.Get(externalapi.DomainHash{8})
	if err != nil || found {
		t.Fatalf("Get of unknown block: %t, %+v", found, err)
	}
}
