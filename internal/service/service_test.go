package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/personal-context/internal/document"
	"github.com/go-ports/personal-context/internal/service"
	"github.com/go-ports/personal-context/internal/store"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 800_000_000, time.UTC)

func newService(c *qt.C, opts ...service.Option) *service.Service {
	c.Helper()
	opts = append([]service.Option{service.WithClock(func() time.Time { return fixedNow })}, opts...)
	svc, err := service.New(c.TempDir(), opts...)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = svc.Close() })
	return svc
}

// memStore is an in-memory Store whose Save can be made to fail.
type memStore struct {
	doc     document.Document
	loadErr error
	saveErr error
}

func (m *memStore) Load(context.Context) (document.Document, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.doc.Clone(), nil
}

func (m *memStore) Save(_ context.Context, doc document.Document) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.doc = doc.Clone()
	return nil
}

func (*memStore) Close() error { return nil }

func healthDoc() document.Document {
	return document.Document{
		"basic_info":  map[string]any{"name": "Ada"},
		"health":      map[string]any{"allergies": []any{"peanuts"}},
		"instruction": map[string]any{"privacy": "My health is private"},
		"metadata":    map[string]any{"version": "1.0", "change_history": []any{}},
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestContext_SeedsAndFilters(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)

	doc, err := svc.Context(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(doc["basic_info"], qt.DeepEquals, map[string]any{"name": "Example User", "location": "Example City"})

	path, ok := svc.StorePath()
	c.Assert(ok, qt.IsTrue)
	c.Assert(path, qt.Equals, filepath.Join(svc.Home, "personal_context.json"))
	_, err = os.Stat(path)
	c.Assert(err, qt.IsNil)
}

func TestContext_HealthPhraseRemovesHealth(t *testing.T) {
	c := qt.New(t)
	st := &memStore{doc: healthDoc()}
	svc := newService(c, service.WithStore(st))

	doc, err := svc.Context(context.Background())
	c.Assert(err, qt.IsNil)
	_, has := doc["health"]
	c.Assert(has, qt.IsFalse)
	c.Assert(doc["basic_info"], qt.DeepEquals, map[string]any{"name": "Ada"})

	// The stored document still holds the private section.
	raw, err := svc.Raw(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(raw["health"], qt.IsNotNil)
}

func TestSection(t *testing.T) {
	c := qt.New(t)
	st := &memStore{doc: healthDoc()}
	st.doc["nothing"] = nil
	svc := newService(c, service.WithStore(st))
	ctx := context.Background()

	cases := []struct {
		name string
		want document.Document
	}{
		{"basic_info", document.Document{"basic_info": map[string]any{"name": "Ada"}}},
		{"health", service.SectionNotFound()},
		{"unknown", service.SectionNotFound()},
		{"nothing", service.SectionNotFound()},
	}
	for _, tt := range cases {
		c.Run(tt.name, func(c *qt.C) {
			got, err := svc.Section(ctx, tt.name)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.DeepEquals, tt.want)
		})
	}

	c.Run("all equals the full filtered view", func(c *qt.C) {
		all, err := svc.Section(ctx, service.AllSections)
		c.Assert(err, qt.IsNil)
		full, err := svc.Context(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(all, qt.DeepEquals, full)
	})
}

func TestField(t *testing.T) {
	c := qt.New(t)
	svc := newService(c, service.WithStore(&memStore{doc: healthDoc()}))
	ctx := context.Background()

	cases := []struct {
		name string
		path string
		want document.Document
	}{
		{name: "nested field", path: "basic_info.name", want: document.Document{"basic_info.name": "Ada"}},
		{name: "section name", path: "basic_info", want: document.Document{"basic_info": map[string]any{"name": "Ada"}}},
		{name: "missing field", path: "basic_info.age", want: service.SectionNotFound()},
		{name: "field under hidden section", path: "health.allergies", want: service.SectionNotFound()},
	}

	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			got, err := svc.Field(ctx, tc.path)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.DeepEquals, tc.want)
		})
	}
}

func TestSections(t *testing.T) {
	c := qt.New(t)
	svc := newService(c, service.WithStore(&memStore{doc: healthDoc()}))

	names, err := svc.Sections(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"basic_info", "instruction", "metadata"})
}

func TestReads_FailurePath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("missing instruction block", func(c *qt.C) {
		svc := newService(c, service.WithStore(&memStore{doc: document.Document{"basic_info": map[string]any{}}}))
		_, err := svc.Context(ctx)
		c.Assert(errors.Is(err, document.ErrMissingInstructionBlock), qt.IsTrue)
		_, err = svc.Section(ctx, "basic_info")
		c.Assert(errors.Is(err, document.ErrMissingInstructionBlock), qt.IsTrue)
	})

	c.Run("storage failure", func(c *qt.C) {
		serr := &store.Error{Op: "load", Path: "x", Err: errors.New("disk gone")}
		svc := newService(c, service.WithStore(&memStore{loadErr: serr}))
		_, err := svc.Context(ctx)
		var got *store.Error
		c.Assert(errors.As(err, &got), qt.IsTrue)
	})
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_HappyPath(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)
	ctx := context.Background()

	res, err := svc.Update(ctx, "preferences.learning_style", "auditory", "user stated preference")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message(), qt.Equals, `Successfully updated preferences.learning_style to "auditory"`)
	c.Assert(res.Record.HadPrevious, qt.IsTrue)
	c.Assert(res.Record.PreviousValue, qt.Equals, "visual")
	c.Assert(res.Record.Timestamp, qt.Equals, "2026-03-04T05:06:07.800Z")

	got, err := svc.Section(ctx, "preferences")
	c.Assert(err, qt.IsNil)
	c.Assert(got["preferences"].(map[string]any)["learning_style"], qt.Equals, "auditory")

	history, err := svc.History(ctx, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(history, qt.HasLen, 1)
	c.Assert(history[0].Reason, qt.Equals, "user stated preference")
}

func TestUpdate_NewPathRecordsAbsence(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)

	res, err := svc.Update(context.Background(), "work.employer.name", "Acme", "")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Record.HadPrevious, qt.IsFalse)
	_, has := res.Record.Map()["previous_value"]
	c.Assert(has, qt.IsFalse)
}

func TestUpdate_ScrubsSecrets(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)
	ctx := context.Background()

	res, err := svc.Update(ctx, "accounts.github", "token ghp_abcdef123456", "password: hunter2")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Value, qt.Equals, "token [REDACTED]")
	c.Assert(res.Record.Reason, qt.Equals, "[REDACTED]")
}

func TestUpdate_OrdinaryTextIsStoredVerbatim(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)
	ctx := context.Background()

	res, err := svc.Update(ctx, "preferences.note", "my secret: I love jazz", "secret: shared in chat")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message(), qt.Equals, `Successfully updated preferences.note to "my secret: I love jazz"`)
	c.Assert(res.Record.Reason, qt.Equals, "secret: shared in chat")

	doc, err := svc.Raw(ctx)
	c.Assert(err, qt.IsNil)
	got, ok := document.Lookup(doc, "preferences.note")
	c.Assert(ok, qt.IsTrue)
	c.Assert(got, qt.Equals, "my secret: I love jazz")
}

func TestUpdate_RedactionDisabled(t *testing.T) {
	c := qt.New(t)
	home := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(home, "config.yaml"), []byte("privacy:\n  redact_secrets: false\n"), 0o600), qt.IsNil)

	svc, err := service.New(home)
	c.Assert(err, qt.IsNil)
	defer svc.Close()

	res, err := svc.Update(context.Background(), "accounts.github", "ghp_abcdef123456", "")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Value, qt.Equals, "ghp_abcdef123456")
}

func TestUpdate_IgnoreFilePatterns(t *testing.T) {
	c := qt.New(t)
	home := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(home, ".contextignore"), []byte("# passport\nP[0-9]{8}\n"), 0o600), qt.IsNil)

	svc, err := service.New(home)
	c.Assert(err, qt.IsNil)
	defer svc.Close()

	res, err := svc.Update(context.Background(), "travel.passport", "P12345678", "")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Value, qt.Equals, "[REDACTED]")
}

func TestUpdate_StructuredValue(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)

	res, err := svc.Update(context.Background(), "preferences.editors", []any{"vim", "zed"}, "")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message(), qt.Equals, `Successfully updated preferences.editors to "["vim","zed"]"`)
}

func TestUpdate_FailurePath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("empty path is rejected before loading", func(c *qt.C) {
		st := &memStore{loadErr: errors.New("must not load")}
		svc := newService(c, service.WithStore(st))
		_, err := svc.Update(ctx, "", "x", "")
		c.Assert(errors.Is(err, document.ErrInvalidPath), qt.IsTrue)
	})

	c.Run("save failure persists nothing and notifies no one", func(c *qt.C) {
		st := &memStore{doc: healthDoc(), saveErr: &store.Error{Op: "save", Path: "x", Err: errors.New("read-only")}}
		svc := newService(c, service.WithStore(st))
		notified := false
		svc.OnChange(func(string) { notified = true })

		_, err := svc.Update(ctx, "basic_info.name", "Grace", "")
		var serr *store.Error
		c.Assert(errors.As(err, &serr), qt.IsTrue)
		c.Assert(notified, qt.IsFalse)
		c.Assert(st.doc["basic_info"], qt.DeepEquals, map[string]any{"name": "Ada"})
	})
}

func TestUpdate_ConcurrentWritersLoseNothing(t *testing.T) {
	c := qt.New(t)
	st := &memStore{doc: healthDoc()}
	svc := newService(c, service.WithStore(st))

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Update(context.Background(), fmt.Sprintf("counters.k%d", i), float64(i), "")
			c.Check(err, qt.IsNil)
		}()
	}
	wg.Wait()

	history, err := svc.History(context.Background(), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(history, qt.HasLen, writers)
	c.Assert(st.doc["counters"].(map[string]any), qt.HasLen, writers)
}

func TestOnChange(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)

	var got []string
	svc.OnChange(func(path string) { got = append(got, path) })

	_, err := svc.Update(context.Background(), "basic_info.name", "Ada", "")
	c.Assert(err, qt.IsNil)
	svc.Notify("")
	c.Assert(got, qt.DeepEquals, []string{"basic_info.name", ""})
}

func TestHistory_Limit(t *testing.T) {
	c := qt.New(t)
	svc := newService(c)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		_, err := svc.Update(ctx, "letters.last", v, "step "+v)
		c.Assert(err, qt.IsNil)
	}

	history, err := svc.History(ctx, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(history, qt.HasLen, 2)
	c.Assert(history[0].NewValue, qt.Equals, "c")
	c.Assert(history[1].NewValue, qt.Equals, "b")
	c.Assert(history[0].PreviousValue, qt.Equals, "b")
}

// ---------------------------------------------------------------------------
// Render
// ---------------------------------------------------------------------------

func TestRender(t *testing.T) {
	c := qt.New(t)
	doc := document.Document{"basic_info": map[string]any{"name": "Ada"}}

	cases := []struct {
		format string
		want   string
	}{
		{"", "{\n  \"basic_info\": {\n    \"name\": \"Ada\"\n  }\n}"},
		{"json", "{\n  \"basic_info\": {\n    \"name\": \"Ada\"\n  }\n}"},
		{"yaml", "basic_info:\n    name: Ada"},
		{"markdown", "# Personal Context\n\n## Basic Info\n\n- **name:** Ada"},
	}
	for _, tt := range cases {
		c.Run("format "+tt.format, func(c *qt.C) {
			got, err := service.Render(doc, tt.format)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.want)
		})
	}

	c.Run("unknown format", func(c *qt.C) {
		_, err := service.Render(doc, "xml")
		c.Assert(errors.Is(err, service.ErrUnknownFormat), qt.IsTrue)
	})
}

func TestIsSectionNotFound(t *testing.T) {
	c := qt.New(t)
	c.Assert(service.IsSectionNotFound(service.SectionNotFound()), qt.IsTrue)
	c.Assert(service.IsSectionNotFound(document.Document{"error": "other"}), qt.IsFalse)
	c.Assert(service.IsSectionNotFound(document.Document{"basic_info": "x"}), qt.IsFalse)
}
