package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-ports/personal-context/internal/document"
)

// tempFilePrefix names in-flight atomic writes.
const tempFilePrefix = ".pctx-tmp-"

// FileStore keeps the document as indented JSON in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path. Nothing is touched on disk until
// the first Load or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "load", Path: s.path, Err: err}
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
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

	doc, err := document.Decode(data)
	if err != nil {
		return nil, &Error{Op: "load", Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	return doc, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	data, err := document.Encode(doc)
	if err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return &Error{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Close implements Store.
func (*FileStore) Close() error { return nil }

// writeFileAtomic writes data to a temp file next to filename and renames it
// into place, so readers see either the old or the new content.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", filename, err)
	}
	return nil
}
