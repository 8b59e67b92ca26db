package testutils

import (
	"testing"

	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/db/database/ldb"
)

const testDatabaseCacheSizeMiB = 8

// OpenTestDatabase opens a fresh leveldb database in a temporary
// directory that is closed and removed when the test ends.
func OpenTestDatabase(t testing.TB) database.Database {
	return OpenTestDatabaseAt(t, t.TempDir())
}

// OpenTestDatabaseAt opens the leveldb database at path, which allows
// reopening a database to simulate a restart. The database is closed
// when the test ends unless it was closed before.
func OpenTestDatabaseAt(t testing.TB, path string) database.Database {
	db, err := ldb.NewLevelDB(path, testDatabaseCacheSizeMiB)
	if err != nil {
		t.Fatalf("NewLevelDB: %+v", err)
	}
	closable := &closeOnceDatabase{Database: db}
	t.Cleanup(func() {
		closable.Close()
	})
	return closable
}

type closeOnceDatabase struct {
	database.Database
	closed bool
}

func (db *closeOnceDatabase) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	return db.Database.Close()
}
