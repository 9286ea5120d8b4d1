// Package document defines the personal context document shape shared by the
// mutator, the instruction processor, and the store.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reserved top-level sections and their well-known keys.
const (
	InstructionKey   = "instruction"
	MetadataKey      = "metadata"
	PrivacyKey       = "privacy"
	VersionKey       = "version"
	LastUpdatedKey   = "last_updated"
	ChangeHistoryKey = "change_history"
)

// PathSeparator splits a dot-path into segments.
const PathSeparator = "."

// TimestampLayout is the encoding used for last_updated and change record
// timestamps: RFC 3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrInvalidPath is returned for a path that cannot address a field.
	ErrInvalidPath = errors.New("invalid path")

	// ErrMissingInstructionBlock is returned when a document has no usable
	// instruction section.
	ErrMissingInstructionBlock = errors.New("context missing required instruction block")
)

// Document is a personal context document: a tree of named fields whose
// values are primitives, nested map[string]any mappings, or []any sequences.
type Document map[string]any

// Decode parses a JSON object into a Document.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root is %s, want object", kindOf(raw))
	}
	return Document(m), nil
}

// Encode serialises d as two-space indented JSON without HTML escaping.
func Encode(d Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Clone returns a deep copy of d. The copy shares no mutable state with d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// CloneValue deep-copies a document field value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneMap(t)
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneMap(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// AsMapping reports whether v is a mapping and returns it as map[string]any.
func AsMapping(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

// InstructionBlock returns the document's instruction mapping. It fails with
// ErrMissingInstructionBlock when the section is absent, null, not a mapping,
// or empty.
func InstructionBlock(d Document) (map[string]any, error) {
	raw, ok := d[InstructionKey]
	if !ok || raw == nil {
		return nil, ErrMissingInstructionBlock
	}
	block, ok := AsMapping(raw)
	if !ok {
		return nil, fmt.Errorf("%w: instruction is %s, want object", ErrMissingInstructionBlock, kindOf(raw))
	}
	if len(block) == 0 {
		return nil, fmt.Errorf("%w: instruction is empty", ErrMissingInstructionBlock)
	}
	return block, nil
}

// Validate checks the two reserved sections. Top-level domain sections are
// open-ended and not inspected.
func Validate(d Document) error {
	if _, err := InstructionBlock(d); err != nil {
		return err
	}
	if raw, ok := d[MetadataKey]; ok {
		md, isMap := AsMapping(raw)
		if !isMap {
			return fmt.Errorf("metadata is %s, want object", kindOf(raw))
		}
		if h, ok := md[ChangeHistoryKey]; ok && h != nil {
			if _, isSeq := h.([]any); !isSeq {
				return fmt.Errorf("metadata.change_history is %s, want array", kindOf(h))
			}
		}
	}
	return nil
}

// FormatTimestamp encodes t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SplitPath validates a dot-path and returns its segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path must not be empty", ErrInvalidPath)
	}
	return strings.Split(path, PathSeparator), nil
}

// Lookup resolves a dot-path without creating anything. Only mappings are
// descended; sequences are never indexed.
func Lookup(d Document, path string) (any, bool) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	current := map[string]any(d)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := AsMapping(current[seg])
		if !ok {
			return nil, false
		}
		current = next
	}
	v, ok := current[segments[len(segments)-1]]
	return v, ok
}

// Sections returns the document's top-level field names, sorted.
func (d Document) Sections() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, Document:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, uint, uint64, uint32, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
