package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver with database/sql

	"github.com/go-ports/personal-context/internal/document"
)

// SQLiteStore keeps the document as a single JSON row in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and initialises the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	s := &SQLiteStore{db: db, path: path}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS context_document (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("createSchema: %w", err)
	}
	return nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (document.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM context_document WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		doc := document.Default(clock())
		if err := s.Save(ctx, doc); err != nil {
			return nil, err
		}
		slog.Info("seeded default context document", "path", s.path)
		return doc, nil
	}
	if err != nil {
		return nil, &Error{Op: "load", Path: s.path, Err: err}
	}

	doc, err := document.Decode([]byte(body))
	if err != nil {
		return nil, &Error{Op: "load", Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	return doc, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, doc document.Document) error {
	data, err := document.Encode(doc)
	if err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO context_document (id, body, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(data), document.FormatTimestamp(clock()),
	)
	if err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
