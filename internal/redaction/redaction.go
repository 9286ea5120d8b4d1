// Package redaction scrubs secrets out of values before they reach the
// context document.
package redaction

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Placeholder replaces every scrubbed span.
const Placeholder = "[REDACTED]"

var builtin = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk_(?:live|test)_[a-zA-Z0-9]+`), // Stripe keys
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{16,}`),         // Anthropic keys
	regexp.MustCompile(`(?:ghp|gho|ghs)_[a-zA-Z0-9]+`),      // GitHub tokens
	regexp.MustCompile(`github_pat_[a-zA-Z0-9_]+`),          // GitHub fine-grained PATs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                  // AWS access key IDs
	regexp.MustCompile(`xox[bp]-[a-zA-Z0-9-]+`),             // Slack tokens
	regexp.MustCompile(`-----BEGIN (?:RSA |EC )?PRIVATE KEY-----`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+`), // JWTs
	// Assignments only count when the value is a single token with a digit.
	regexp.MustCompile(`(?i)(?:password|passwd|secret|api[_-]?key)\s*[:=]\s*["']?[^\s"']*[0-9][^\s"']*`),
}

// tagged matches explicit <redacted>...</redacted> spans, across lines.
var tagged = regexp.MustCompile(`(?s)<redacted>.*?</redacted>`)

// Scrubber applies the built-in patterns plus any user patterns.
type Scrubber struct {
	extra []*regexp.Regexp
}

// New returns a Scrubber with the given additional patterns.
func New(extra []*regexp.Regexp) *Scrubber {
	return &Scrubber{extra: extra}
}

// Load returns a Scrubber whose extra patterns come from the ignore file at
// path. A missing file yields a Scrubber with only the built-in patterns.
func Load(path string) (*Scrubber, error) {
	extra, err := LoadIgnoreFile(path)
	if err != nil {
		return nil, err
	}
	return New(extra), nil
}

// String scrubs a single string.
func (s *Scrubber) String(text string) string {
	return Redact(text, s.extra)
}

// Value scrubs every string reachable from v: mapping values, sequence
// elements and scalars. Keys are left alone. v is not modified; mappings and
// sequences are rebuilt.
func (s *Scrubber) Value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = s.Value(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.Value(child)
		}
		return out
	default:
		return v
	}
}

// Redact replaces explicit <redacted> spans, then every built-in pattern,
// then every pattern in extra.
func Redact(text string, extra []*regexp.Regexp) string {
	for {
		next := tagged.ReplaceAllString(text, Placeholder)
		if next == text {
			break
		}
		text = next
	}
	text = strings.NewReplacer("<redacted>", "", "</redacted>", "").Replace(text)

	for _, re := range builtin {
		text = re.ReplaceAllString(text, Placeholder)
	}
	for _, re := range extra {
		text = re.ReplaceAllString(text, Placeholder)
	}
	return text
}

// LoadIgnoreFile compiles each non-blank, non-comment line of a
// .contextignore file as a regular expression. A missing file is not an error.
func LoadIgnoreFile(path string) ([]*regexp.Regexp, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []*regexp.Regexp
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, scanner.Err()
}
