package instruction

import (
	"strings"

	"github.com/go-ports/personal-context/internal/document"
)

// HealthPhrase is the only string-form privacy wording that has an effect.
const HealthPhrase = "health is private"

// healthSection is the top-level section removed by HealthPhrase.
const healthSection = "health"

// PrivacyRule is one recognised shape of instruction.privacy.
// The set is closed: PhraseRule and PathRule.
type PrivacyRule interface {
	// Apply removes redacted fields from doc in place.
	Apply(doc document.Document)
	privacyRule()
}

// PhraseRule is the string form. Text containing HealthPhrase hides the
// top-level health section; any other wording is advisory and does nothing.
type PhraseRule struct {
	Text string
}

// Apply implements PrivacyRule.
func (r PhraseRule) Apply(doc document.Document) {
	if strings.Contains(r.Text, HealthPhrase) {
		delete(doc, healthSection)
	}
}

func (PhraseRule) privacyRule() {}

// PathRule is the structured form {private: [dot-path, ...]}.
type PathRule struct {
	Paths []string
}

// Apply implements PrivacyRule. Paths that do not resolve are skipped.
func (r PathRule) Apply(doc document.Document) {
	for _, p := range r.Paths {
		removePath(doc, p)
	}
}

func (PathRule) privacyRule() {}

// ParsePrivacy maps the raw instruction.privacy value onto a rule. It returns
// nil when the value is absent, empty, or of an unrecognised shape.
func ParsePrivacy(v any) PrivacyRule {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return PhraseRule{Text: t}
	case map[string]any, document.Document:
		m, _ := document.AsMapping(t)
		paths, ok := stringList(m["private"])
		if !ok {
			return nil
		}
		return PathRule{Paths: paths}
	default:
		return nil
	}
}

// stringList extracts the string entries of a sequence, skipping the rest.
func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// removePath deletes the field addressed by a dot-path. Only mappings are
// walked; a missing or non-mapping intermediate ends the walk silently.
func removePath(doc document.Document, path string) {
	segments, err := document.SplitPath(path)
	if err != nil {
		return
	}
	current := map[string]any(doc)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := document.AsMapping(current[seg])
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}
