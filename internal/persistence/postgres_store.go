package persistence

import (
	"database/sql"
)

// PostgresInstanceStore is an InstanceStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
//
// Transitions rely on row locking: a racing UPDATE re-checks the state
// predicate after the winner commits, so the loser sees zero affected rows.
type PostgresInstanceStore struct {
	*sqlInstanceStore
}

// Ensure PostgresInstanceStore implements InstanceStore.
var _ InstanceStore = (*PostgresInstanceStore)(nil)

// NewPostgresInstanceStore initializes the required schema in the given
// database and returns a new PostgresInstanceStore.
func NewPostgresInstanceStore(db *sql.DB) (*PostgresInstanceStore, error) {
	s, err := newSQLInstanceStore(db, postgresDialect)
	if err != nil {
		return nil, err
	}
	return &PostgresInstanceStore{s}, nil
}
