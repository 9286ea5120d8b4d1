// Package mutator updates context document fields addressed by dot-path and
// records every change in metadata.change_history.
package mutator

import (
	"fmt"
	"time"

	"github.com/go-ports/personal-context/internal/document"
)

// Option configures a Mutator.
type Option func(*Mutator)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mutator) { m.now = now }
}

// Mutator applies path updates. It holds no state between calls and is safe
// for concurrent use on independent documents.
type Mutator struct {
	now func() time.Time
}

// New returns a Mutator using the wall clock unless overridden.
func New(opts ...Option) *Mutator {
	m := &Mutator{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ApplyUpdate is Apply on a default Mutator, discarding the change record.
func ApplyUpdate(doc document.Document, path string, value any, reason string) (document.Document, error) {
	out, _, err := New().Apply(doc, path, value, reason)
	return out, err
}

// Apply sets the field at path to value in a copy of doc and prepends a
// change record. doc itself is never modified.
//
// Intermediate segments that are absent or hold a non-mapping value are
// replaced with empty mappings, so a write can turn a primitive into a
// mapping on its way down.
//
// The audit fields (metadata itself, metadata.last_updated and anything
// under metadata.change_history) are maintained here and cannot be written;
// such paths fail with document.ErrInvalidPath.
func (m *Mutator) Apply(doc document.Document, path string, value any, reason string) (document.Document, document.ChangeRecord, error) {
	segments, err := document.SplitPath(path)
	if err != nil {
		return nil, document.ChangeRecord{}, err
	}
	if auditField(segments) {
		return nil, document.ChangeRecord{}, fmt.Errorf("%w: %s is maintained automatically", document.ErrInvalidPath, path)
	}

	out := doc.Clone()
	if out == nil {
		out = make(document.Document)
	}

	current := map[string]any(out)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}

	last := segments[len(segments)-1]
	previous, hadPrevious := current[last]
	current[last] = document.CloneValue(value)

	ts := document.FormatTimestamp(m.now())
	rec := document.ChangeRecord{
		Path:          path,
		PreviousValue: previous,
		HadPrevious:   hadPrevious,
		NewValue:      document.CloneValue(value),
		Reason:        reason,
		Timestamp:     ts,
	}

	md, ok := out[document.MetadataKey].(map[string]any)
	if !ok {
		md = make(map[string]any)
		out[document.MetadataKey] = md
	}
	md[document.LastUpdatedKey] = ts

	history, _ := md[document.ChangeHistoryKey].([]any)
	md[document.ChangeHistoryKey] = append([]any{rec.Map()}, history...)

	return out, rec, nil
}

func auditField(segments []string) bool {
	if segments[0] != document.MetadataKey {
		return false
	}
	if len(segments) == 1 {
		return true
	}
	switch segments[1] {
	case document.LastUpdatedKey, document.ChangeHistoryKey:
		return true
	}
	return false
}
