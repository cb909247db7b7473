package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const stateTable = "run_state"

const createStateTable = `CREATE TABLE IF NOT EXISTS run_state (
	id TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLStore persists RunState as one row per key in SQLite or Postgres.
type SQLStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	key string
}

var _ ports.StateStore = (*SQLStore)(nil)

// OpenSQL connects with driver "sqlite" or "postgres" and ensures the table exists.
func OpenSQL(ctx context.Context, driver, dsn, key string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("state dsn is required")
	}

	if driver == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}

	store := NewSQLStore(db, driver, key)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wires an existing handle; postgres gets $n placeholders.
func NewSQLStore(db *sql.DB, driver, key string) *SQLStore {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == "postgres" {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, sb: sb, key: key}
}

// Migrate creates the state table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createStateTable); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Load reads the row for the configured key.
func (s *SQLStore) Load(ctx context.Context) (domain.RunState, error) {
	query, args, err := s.sb.Select("version", "payload").
		From(stateTable).
		Where(sq.Eq{"id": s.key}).
		ToSql()
	if err != nil {
		return domain.RunState{}, fmt.Errorf("build select: %w", err)
	}

	var (
		version int64
		payload string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewRunState(), nil
	}
	if err != nil {
		return domain.RunState{}, fmt.Errorf("select state: %w", err)
	}

	state, err := decodeState([]byte(payload))
	if err != nil {
		return domain.RunState{}, err
	}
	state.Version = version
	return state, nil
}

// Save inserts the first version or updates guarded by the expected version.
func (s *SQLStore) Save(ctx context.Context, state domain.RunState) error {
	next := state.Version + 1
	payload, err := encodeState(state, next)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		query string
		args  []interface{}
	)
	if state.Version == 0 {
		query, args, err = s.sb.Insert(stateTable).
			Columns("id", "version", "payload", "updated_at").
			Values(s.key, next, string(payload), updatedAt).
			Suffix("ON CONFLICT (id) DO NOTHING").
			ToSql()
	} else {
		query, args, err = s.sb.Update(stateTable).
			Set("version", next).
			Set("payload", string(payload)).
			Set("updated_at", updatedAt).
			Where(sq.Eq{"id": s.key, "version": state.Version}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build save: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("row %s moved past version %d: %w", s.key, state.Version, domain.ErrStateConflict)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
