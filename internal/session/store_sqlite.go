package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/humanloop/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	state      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	trail      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_created_at ON sessions(created_at);
`

// SQLiteStore persists sessions in a single SQLite file. The request and
// trail are stored as JSON; timestamps as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("session: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	// One writer at a time; version checks do the rest.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (st *SQLiteStore) Create(ctx context.Context, s *Session) error {
	req, trail, err := encodeColumns(s)
	if err != nil {
		return err
	}
	res, err := st.db.ExecContext(ctx,
		`INSERT INTO sessions (id, request, state, version, trail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		s.ID, req, string(s.State), s.Version, trail, s.CreatedAt.UnixNano(), s.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("session: insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (st *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := st.db.QueryRowContext(ctx,
		`SELECT id, request, state, version, trail, created_at, updated_at FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (st *SQLiteStore) Update(ctx context.Context, s *Session, expectedVersion int64) error {
	req, trail, err := encodeColumns(s)
	if err != nil {
		return err
	}
	res, err := st.db.ExecContext(ctx,
		`UPDATE sessions SET request = ?, state = ?, version = ?, trail = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		req, string(s.State), expectedVersion+1, trail, s.UpdatedAt.UnixNano(), s.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := st.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, s.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("session: update: %w", err)
		}
		return ErrConflict
	}
	s.Version = expectedVersion + 1
	return nil
}

func (st *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT id, request, state, version, trail, created_at, updated_at FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return out, nil
}

func (st *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (st *SQLiteStore) Close() error { return st.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		s                 Session
		req, state, trail string
		created, updated  int64
	)
	if err := r.Scan(&s.ID, &req, &state, &s.Version, &trail, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(req), &s.Request); err != nil {
		return nil, fmt.Errorf("session: decode request %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(trail), &s.Trail); err != nil {
		return nil, fmt.Errorf("session: decode trail %s: %w", s.ID, err)
	}
	s.State = model.WorkflowState(state)
	s.CreatedAt = time.Unix(0, created).UTC()
	s.UpdatedAt = time.Unix(0, updated).UTC()
	return &s, nil
}

func encodeColumns(s *Session) (string, string, error) {
	req, err := json.Marshal(s.Request)
	if err != nil {
		return "", "", fmt.Errorf("session: encode request: %w", err)
	}
	trail := s.Trail
	if trail == nil {
		trail = []TrailEntry{}
	}
	tr, err := json.Marshal(trail)
	if err != nil {
		return "", "", fmt.Errorf("session: encode trail: %w", err)
	}
	return string(req), string(tr), nil
}
