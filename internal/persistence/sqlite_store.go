package persistence

import (
	"database/sql"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Instances live in the "instances" table and their history in
// "transitions", one row per record.
type SQLiteInstanceStore struct {
	*sqlInstanceStore
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s, err := newSQLInstanceStore(db, sqliteDialect)
	if err != nil {
		return nil, err
	}
	return &SQLiteInstanceStore{s}, nil
}
