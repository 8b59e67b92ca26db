package ldb

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/timecoin/timed/infrastructure/db/database"
)

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	path := t.TempDir()
	ldb, err := NewLevelDB(path, 8)
	if err != nil {
		t.Fatalf("%s: NewLevelDB unexpectedly failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
		}
	}
	return ldb, teardownFunc
}

func TestLevelDBSanity(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBSanity")
	defer teardownFunc()

	key := database.MakeBucket([]byte("bucket")).Key([]byte("key"))
	putData := []byte("Hello world!")
	err := ldb.Put(key, putData)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Put returned unexpected error: %s", err)
	}

	getData, err := ldb.Get(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Get returned unexpected error: %s", err)
	}
	if !bytes.Equal(getData, putData) {
		t.Fatalf("TestLevelDBSanity: get data and put data are not equal. Put: %s, got: %s",
			string(putData), string(getData))
	}

	err = ldb.Delete(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Delete returned unexpected error: %s", err)
	}
	_, err = ldb.Get(key)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestLevelDBSanity: expected ErrNotFound after Delete, got: %v", err)
	}
}

func TestLevelDBTransactionCommitAndRollback(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBTransactionCommitAndRollback")
	defer teardownFunc()

	bucket := database.MakeBucket([]byte("tx"))
	committedKey := bucket.Key([]byte("committed"))
	rolledBackKey := bucket.Key([]byte("rolled-back"))

	tx, err := ldb.Begin()
	if err != nil {
		t.Fatalf("Begin: %s", err)
	}
	err = tx.Put(committedKey, []byte("value"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	exists, err := ldb.Has(committedKey)
	if err != nil {
		t.Fatalf("Has: %s", err)
	}
	if exists {
		t.Fatalf("uncommitted write is visible outside the transaction")
	}
	err = tx.Commit()
	if err != nil {
		t.Fatalf("Commit: %s", err)
	}
	err = tx.RollbackUnlessClosed()
	if err != nil {
		t.Fatalf("RollbackUnlessClosed after Commit: %s", err)
	}

	tx, err = ldb.Begin()
	if err != nil {
		t.Fatalf("Begin: %s", err)
	}
	err = tx.Put(rolledBackKey, []byte("value"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	err = tx.Rollback()
	if err != nil {
		t.Fatalf("Rollback: %s", err)
	}
	err = tx.Put(rolledBackKey, []byte("value"))
	if err == nil {
		t.Fatalf("Put into a closed transaction unexpectedly succeeded")
	}

	exists, err = ldb.Has(committedKey)
	if err != nil || !exists {
		t.Fatalf("committed key is missing: exists=%t err=%v", exists, err)
	}
	exists, err = ldb.Has(rolledBackKey)
	if err != nil || exists {
		t.Fatalf("rolled back key exists: exists=%t err=%v", exists, err)
	}
}

// TestCursorSanity validates typical cursor usage, including
// opening a cursor over some existing data, seeking back
// and forth over that data, and getting some keys/values out
// of the cursor.
func TestCursorSanity(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestCursorSanity")
	defer teardownFunc()

	bucket := database.MakeBucket([]byte("bucket"))
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%d", i)
		value := fmt.Sprintf("value%d", i)
		err := ldb.Put(bucket.Key([]byte(key)), []byte(value))
		if err != nil {
			t.Fatalf("TestCursorSanity: Put unexpectedly failed: %s", err)
		}
	}
	// A key in another bucket must not be visited.
	err := ldb.Put(database.MakeBucket([]byte("other")).Key([]byte("key0")), []byte("other"))
	if err != nil {
		t.Fatalf("TestCursorSanity: Put unexpectedly failed: %s", err)
	}

	cursor, err := ldb.Cursor(bucket)
	if err != nil {
		t.Fatalf("TestCursorSanity: ldb.Cursor unexpectedly failed: %s", err)
	}

	count := 0
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			t.Fatalf("TestCursorSanity: Key unexpectedly failed: %s", err)
		}
		value, err := cursor.Value()
		if err != nil {
			t.Fatalf("TestCursorSanity: Value unexpectedly failed: %s", err)
		}
		expectedKey := fmt.Sprintf("key%d", count)
		expectedValue := fmt.Sprintf("value%d", count)
		if string(key.Suffix()) != expectedKey || string(value) != expectedValue {
			t.Fatalf("TestCursorSanity: got %s=%s, want %s=%s",
				key.Suffix(), value, expectedKey, expectedValue)
		}
		count++
	}
	if count != 10 {
		t.Fatalf("TestCursorSanity: visited %d entries, want 10", count)
	}

	err = cursor.Seek(bucket.Key([]byte("key7")))
	if err != nil {
		t.Fatalf("TestCursorSanity: Seek unexpectedly failed: %s", err)
	}
	err = cursor.Seek(bucket.Key([]byte("doesn't exist")))
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestCursorSanity: Seek to a missing key returned %v", err)
	}

	err = cursor.Close()
	if err != nil {
		t.Fatalf("TestCursorSanity: Close unexpectedly failed: %s", err)
	}
	defer func() {
		panicErr := recover()
		if panicErr == nil || !strings.Contains(fmt.Sprintf("%v", panicErr), "closed cursor") {
			t.Fatalf("TestCursorSanity: expected a closed cursor panic, got %v", panicErr)
		}
	}()
	cursor.Next()
}
