package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/petrijr/flowstate/pkg/api"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	name      string
	blobType  string
	dollarArg bool

	// readTx isolates reads of an instance row and its history from
	// concurrent transitions. SQLite transactions are already serializable.
	readTx *sql.TxOptions
}

var (
	sqliteDialect   = sqlDialect{name: "sqlite", blobType: "BLOB"}
	postgresDialect = sqlDialect{
		name:      "postgres",
		blobType:  "BYTEA",
		dollarArg: true,
		readTx:    &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
)

// rebind rewrites '?' placeholders into the dialect's form.
func (d sqlDialect) rebind(query string) string {
	if !d.dollarArg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d sqlDialect) schema() []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			payload %s,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, d.blobType),
		`
		CREATE TABLE IF NOT EXISTS transitions (
			instance_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			operation TEXT NOT NULL,
			at BIGINT NOT NULL,
			PRIMARY KEY (instance_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_state ON instances(state)`,
	}
}

// sqlInstanceStore implements InstanceStore on top of database/sql. The
// SQLite and PostgreSQL stores share it.
type sqlInstanceStore struct {
	db      *sql.DB
	dialect sqlDialect
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func newSQLInstanceStore(db *sql.DB, d sqlDialect) (*sqlInstanceStore, error) {
	s := &sqlInstanceStore{db: db, dialect: d}
	for _, stmt := range d.schema() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
	}
	return s, nil
}

func (s *sqlInstanceStore) SaveInstance(ctx context.Context, snap api.InstanceSnapshot) error {
	payload, err := EncodeValue(snap.Payload)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = snap.CreatedAt
	}
	res, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO instances (id, state, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		snap.ID,
		string(snap.State),
		payload,
		snap.CreatedAt.UnixNano(),
		updated.UnixNano(),
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrInstanceExists
	}

	for i, rec := range snap.History {
		if err := s.insertRecord(ctx, tx, snap.ID, i, rec); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqlInstanceStore) insertRecord(ctx context.Context, tx *sql.Tx, id string, seq int, rec api.TransitionRecord) error {
	_, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO transitions (instance_id, seq, from_state, to_state, operation, at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		id,
		seq,
		string(rec.From),
		string(rec.To),
		string(rec.Operation),
		rec.At.UnixNano(),
	)
	return err
}

// readTx runs fn in a read-only transaction so that an instance row and its
// history come from the same committed state.
func (s *sqlInstanceStore) readTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.readTx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlInstanceStore) GetInstance(ctx context.Context, id string) (api.InstanceSnapshot, error) {
	var snap api.InstanceSnapshot
	err := s.readTx(ctx, func(q queryer) error {
		rows, err := q.QueryContext(ctx, s.dialect.rebind(`
			SELECT id, state, payload, created_at, updated_at
			FROM instances
			WHERE id = ?`), id)
		if err != nil {
			return err
		}
		snaps, err := scanInstances(rows)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return ErrInstanceNotFound
		}

		snap = snaps[0]
		snap.History, err = s.loadHistory(ctx, q, id)
		return err
	})
	if err != nil {
		return api.InstanceSnapshot{}, err
	}
	return snap, nil
}

func (s *sqlInstanceStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]api.InstanceSnapshot, error) {
	query := `
		SELECT id, state, payload, created_at, updated_at
		FROM instances`
	var args []any

	if filter.State != "" {
		query += " WHERE state = ?"
		args = append(args, string(filter.State))
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var snaps []api.InstanceSnapshot
	err := s.readTx(ctx, func(q queryer) error {
		rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
		if err != nil {
			return err
		}
		if snaps, err = scanInstances(rows); err != nil {
			return err
		}

		for i := range snaps {
			if snaps[i].History, err = s.loadHistory(ctx, q, snaps[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func scanInstances(rows *sql.Rows) ([]api.InstanceSnapshot, error) {
	defer rows.Close()

	var out []api.InstanceSnapshot
	for rows.Next() {
		var (
			snap             api.InstanceSnapshot
			state            string
			payload          []byte
			created, updated int64
		)
		if err := rows.Scan(&snap.ID, &state, &payload, &created, &updated); err != nil {
			return nil, err
		}

		value, err := DecodeValue(payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", snap.ID, err)
		}
		snap.Payload = value
		snap.State = api.State(state)
		snap.CreatedAt = fromUnixNano(created)
		snap.UpdatedAt = fromUnixNano(updated)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqlInstanceStore) loadHistory(ctx context.Context, q queryer, id string) ([]api.TransitionRecord, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(`
		SELECT from_state, to_state, operation, at
		FROM transitions
		WHERE instance_id = ?
		ORDER BY seq ASC`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TransitionRecord
	for rows.Next() {
		var sr storedRecord
		if err := rows.Scan(&sr.From, &sr.To, &sr.Operation, &sr.At); err != nil {
			return nil, err
		}
		out = append(out, sr.record())
	}
	return out, rows.Err()
}

func (s *sqlInstanceStore) AppendTransition(ctx context.Context, id string, rec api.TransitionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE instances
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?`),
		string(rec.To),
		rec.At.UnixNano(),
		id,
		string(rec.From),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var n int
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM instances WHERE id = ?`), id).Scan(&n)
		switch {
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return err
		case n == 0:
			return ErrInstanceNotFound
		default:
			return ErrStateConflict
		}
	}

	var seq int
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM transitions WHERE instance_id = ?`), id).Scan(&seq); err != nil {
		return err
	}
	if err := s.insertRecord(ctx, tx, id, seq, rec); err != nil {
		return err
	}

	return tx.Commit()
}
