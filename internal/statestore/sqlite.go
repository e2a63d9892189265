package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store persisted in a sqlite database file.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory for %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database %q: %w", path, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path, now: time.Now}
	if err := s.initDB(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) initDB(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS project_state (
			project TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY (project, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("initialise state schema: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, project, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM project_state WHERE project = ? AND key = ?`,
		project, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query state %s/%s: %w", project, key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, project, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_state (project, key, value, updated_at_unix)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project, key) DO UPDATE SET
			value = excluded.value,
			updated_at_unix = excluded.updated_at_unix
	`, project, key, value, s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store state %s/%s: %w", project, key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, project, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM project_state WHERE project = ? AND key = ?`,
		project, key,
	); err != nil {
		return fmt.Errorf("delete state %s/%s: %w", project, key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
