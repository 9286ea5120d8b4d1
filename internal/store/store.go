// Package store persists the single canonical context document.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/document"
)

// ErrCorrupt marks persisted content that cannot be decoded as a document.
var ErrCorrupt = errors.New("corrupt context document")

// Store loads and saves the canonical, unfiltered context document.
//
// Load never fails because the document is missing: on first use it seeds
// and persists document.Default. Save replaces the persisted document as a
// whole or not at all.
type Store interface {
	Load(ctx context.Context) (document.Document, error)
	Save(ctx context.Context, doc document.Document) error
	Close() error
}

// Error reports a persistence failure.
type Error struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Open returns the Store selected by cfg, rooted at home when cfg.Path is
// relative or empty.
func Open(cfg config.StorageConfig, home string) (Store, error) {
	path := ResolvePath(cfg, home)
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(path)
	case config.BackendFile, "":
		return NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("store.Open: unknown backend %q", cfg.Backend)
	}
}

// ResolvePath returns the on-disk location for cfg.
func ResolvePath(cfg config.StorageConfig, home string) string {
	path := cfg.Path
	if path == "" {
		if cfg.Backend == config.BackendSQLite {
			path = "context.db"
		} else {
			path = "personal_context.json"
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(home, path)
	}
	return path
}

// clock stamps seeded documents and SQLite rows.
var clock = time.Now
