// Package service implements the caller-facing context operations: read the
// filtered document, read one section, and update a field. It wires together
// configuration, storage, the path mutator, the instruction processor, and
// secret scrubbing.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/document"
	"github.com/go-ports/personal-context/internal/instruction"
	"github.com/go-ports/personal-context/internal/markdown"
	"github.com/go-ports/personal-context/internal/mutator"
	"github.com/go-ports/personal-context/internal/redaction"
	"github.com/go-ports/personal-context/internal/store"
)

// AllSections is the section name that selects the full document.
const AllSections = "all"

// SectionNotFoundMessage is the error text of the SectionNotFound payload.
const SectionNotFoundMessage = "Section not found"

// Output formats accepted by Render.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned by Render for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// Service owns the single context document of one context home.
type Service struct {
	Home   string
	Config *config.Config

	store    store.Store
	mutator  *mutator.Mutator
	scrubber *redaction.Scrubber // nil when redact_secrets is off

	mu sync.Mutex // guards the load -> mutate -> save critical section

	listenMu  sync.Mutex
	listeners []func(path string)
}

// Option customises a Service.
type Option func(*Service)

// WithStore replaces the store selected by the home config.
func WithStore(st store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithClock sets the time source for change records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.mutator = mutator.New(mutator.WithClock(now)) }
}

// New initialises a Service rooted at home.
// If home is empty it is resolved via config.GetHome.
func New(home string, opts ...Option) (*Service, error) {
	if home == "" {
		home = config.GetHome()
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("service.New: create home: %w", err)
	}

	cfg, err := config.Load(ConfigPath(home))
	if err != nil {
		return nil, fmt.Errorf("service.New: load config: %w", err)
	}

	s := &Service{
		Home:    home,
		Config:  cfg,
		mutator: mutator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		st, err := store.Open(cfg.Storage, home)
		if err != nil {
			return nil, fmt.Errorf("service.New: open store: %w", err)
		}
		s.store = st
	}

	if cfg.Privacy.RedactSecrets {
		scrubber, err := redaction.Load(IgnoreFilePath(home, cfg))
		if err != nil {
			slog.Warn("failed to load .contextignore", "err", err)
			scrubber = redaction.New(nil)
		}
		s.scrubber = scrubber
	}

	return s, nil
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

// ConfigPath returns the per-home config file.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// IgnoreFilePath returns the .contextignore file in effect for home.
func IgnoreFilePath(home string, cfg *config.Config) string {
	p := cfg.Privacy.IgnoreFile
	if p == "" {
		return filepath.Join(home, ".contextignore")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(home, p)
	}
	return p
}

// StorePath returns the context file when the file backend is in use.
func (s *Service) StorePath() (string, bool) {
	fs, ok := s.store.(*store.FileStore)
	if !ok {
		return "", false
	}
	return fs.Path(), true
}

// ---------------------------------------------------------------------------
// Change listeners
// ---------------------------------------------------------------------------

// OnChange registers fn to run after every successful update, with the
// updated path, and after external edits reported through Notify, with "".
func (s *Service) OnChange(fn func(path string)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Notify runs the change listeners. path is "" when the change did not come
// from Update.
func (s *Service) Notify(path string) {
	s.listenMu.Lock()
	fns := append([]func(string){}, s.listeners...)
	s.listenMu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Raw returns the stored, unfiltered document, seeding it on first use.
func (s *Service) Raw(ctx context.Context) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

// Context returns the full document after privacy filtering.
func (s *Service) Context(ctx context.Context) (document.Document, error) {
	doc, err := s.Raw(ctx)
	if err != nil {
		return nil, err
	}
	return instruction.Apply(doc)
}

// Section returns {name: value} from the filtered document. The name "all"
// returns the full filtered document. A section that is absent or null after
// filtering yields the SectionNotFound payload, not an error.
func (s *Service) Section(ctx context.Context, name string) (document.Document, error) {
	doc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	if name == AllSections {
		return doc, nil
	}
	v, ok := doc[name]
	if !ok || v == nil {
		return SectionNotFound(), nil
	}
	return document.Document{name: v}, nil
}

// Field is Section for a dot-path: it returns {path: value} from the
// filtered document. A path without a separator is a section name.
func (s *Service) Field(ctx context.Context, path string) (document.Document, error) {
	if !strings.Contains(path, document.PathSeparator) {
		return s.Section(ctx, path)
	}
	doc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := document.Lookup(doc, path)
	if !ok || v == nil {
		return SectionNotFound(), nil
	}
	return document.Document{path: v}, nil
}

// Sections returns the top-level section names of the filtered document.
func (s *Service) Sections(ctx context.Context) ([]string, error) {
	doc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Sections(), nil
}

// History returns up to limit change records, newest first. limit <= 0
// returns all of them.
func (s *Service) History(ctx context.Context, limit int) ([]document.ChangeRecord, error) {
	doc, err := s.Raw(ctx)
	if err != nil {
		return nil, err
	}
	records := document.History(doc)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SectionNotFound is the data-level payload for a missing section.
func SectionNotFound() document.Document {
	return document.Document{"error": SectionNotFoundMessage}
}

// IsSectionNotFound reports whether doc is the SectionNotFound payload.
func IsSectionNotFound(doc document.Document) bool {
	if len(doc) != 1 {
		return false
	}
	msg, ok := doc["error"].(string)
	return ok && msg == SectionNotFoundMessage
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// UpdateResult describes a successful update.
type UpdateResult struct {
	Path   string
	Value  any
	Record document.ChangeRecord
}

// Message is the confirmation returned to callers.
func (r *UpdateResult) Message() string {
	return fmt.Sprintf("Successfully updated %s to \"%s\"", r.Path, FormatValue(r.Value))
}

// Update sets the field at path to value and records reason in the change
// history. Secrets are scrubbed from value and reason first when
// privacy.redact_secrets is on. Nothing is persisted unless every step
// succeeds.
func (s *Service) Update(ctx context.Context, path string, value any, reason string) (*UpdateResult, error) {
	if _, err := document.SplitPath(path); err != nil {
		return nil, err
	}
	if s.scrubber != nil {
		value = s.scrubber.Value(value)
		reason = s.scrubber.String(reason)
	}

	rec, err := s.update(ctx, path, value, reason)
	if err != nil {
		return nil, err
	}
	slog.Debug("context updated", "path", path)

	s.Notify(path)
	return &UpdateResult{Path: path, Value: rec.NewValue, Record: rec}, nil
}

func (s *Service) update(ctx context.Context, path string, value any, reason string) (document.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return document.ChangeRecord{}, err
	}
	updated, rec, err := s.mutator.Apply(doc, path, value, reason)
	if err != nil {
		return document.ChangeRecord{}, err
	}
	if err := s.store.Save(ctx, updated); err != nil {
		return document.ChangeRecord{}, err
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Render serialises doc as json (two-space indent), yaml, or markdown. An
// empty format means json. The result has no trailing newline.
func Render(doc document.Document, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		out, err := document.Encode(doc)
		if err != nil {
			return "", fmt.Errorf("Render: %w", err)
		}
		return string(out), nil
	case FormatYAML, "yml":
		out, err := yaml.Marshal(map[string]any(doc))
		if err != nil {
			return "", fmt.Errorf("Render: %w", err)
		}
		return strings.TrimRight(string(out), "\n"), nil
	case FormatMarkdown, "md":
		return strings.TrimRight(markdown.Render(doc), "\n"), nil
	default:
		return "", fmt.Errorf("Render: %w %q", ErrUnknownFormat, format)
	}
}

// FormatValue renders a field value for messages: strings verbatim,
// everything else as compact JSON.
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
