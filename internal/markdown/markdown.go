// Package markdown renders a filtered context document as Markdown, suitable
// for pasting into agent instruction files such as CLAUDE.md or AGENTS.md.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-ports/personal-context/internal/document"
)

// Title is the H1 heading of a rendered document.
const Title = "Personal Context"

// Render produces front-matter with the document version and last update,
// an H1, then one H2 per top-level section in key order. The metadata
// section is folded into the front-matter; its change history is omitted.
func Render(doc document.Document) string {
	var sb strings.Builder
	writeFrontmatter(&sb, doc)
	sb.WriteString("# ")
	sb.WriteString(Title)
	sb.WriteString("\n")

	for _, name := range doc.Sections() {
		if name == document.MetadataKey {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(RenderSection(name, doc[name]))
	}
	return sb.String()
}

// RenderSection produces a single ## heading block for one section.
func RenderSection(name string, value any) string {
	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(Heading(name))
	sb.WriteString("\n\n")

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			sb.WriteString("_empty_\n")
		}
		writeMapping(&sb, v, 0)
	case []any:
		if len(v) == 0 {
			sb.WriteString("_empty_\n")
		}
		writeSequence(&sb, v, 0)
	default:
		sb.WriteString(scalar(v))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Write renders doc into path, replacing any previous content.
func Write(path string, doc document.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(Render(doc)), 0o600)
}

// Heading turns a section key such as "basic_info" into "Basic Info".
func Heading(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return key
	}
	return strings.Join(words, " ")
}

// ---------------------------------------------------------------------------
// Front-matter
// ---------------------------------------------------------------------------

func writeFrontmatter(sb *strings.Builder, doc document.Document) {
	meta, ok := doc[document.MetadataKey].(map[string]any)
	if !ok {
		return
	}
	version, _ := meta[document.VersionKey].(string)
	updated, _ := meta[document.LastUpdatedKey].(string)
	if version == "" && updated == "" {
		return
	}

	sb.WriteString("---\n")
	if version != "" {
		sb.WriteString("version: ")
		sb.WriteString(version)
		sb.WriteString("\n")
	}
	if updated != "" {
		sb.WriteString("last_updated: ")
		sb.WriteString(updated)
		sb.WriteString("\n")
	}
	sb.WriteString("---\n\n")
}

// ---------------------------------------------------------------------------
// Nested lists
// ---------------------------------------------------------------------------

func writeMapping(sb *strings.Builder, m map[string]any, depth int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		indent(sb, depth)
		sb.WriteString("- **")
		sb.WriteString(k)
		sb.WriteString(":**")
		writeChild(sb, m[k], depth)
	}
}

func writeSequence(sb *strings.Builder, items []any, depth int) {
	for _, item := range items {
		indent(sb, depth)
		sb.WriteString("-")
		writeChild(sb, item, depth)
	}
}

// writeChild finishes the current bullet: scalars inline, containers as a
// nested list one level deeper.
func writeChild(sb *strings.Builder, v any, depth int) {
	switch t := v.(type) {
	case map[string]any:
		sb.WriteString("\n")
		writeMapping(sb, t, depth+1)
	case []any:
		sb.WriteString("\n")
		writeSequence(sb, t, depth+1)
	default:
		sb.WriteString(" ")
		sb.WriteString(scalar(t))
		sb.WriteString("\n")
	}
}

func indent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "_none_"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
