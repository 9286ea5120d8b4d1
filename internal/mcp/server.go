// Package mcp provides the stdio MCP server exposing the personal context
// document to agents as resources and tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/go-ports/personal-context/internal/buildinfo"
	"github.com/go-ports/personal-context/internal/document"
	"github.com/go-ports/personal-context/internal/service"
	"github.com/go-ports/personal-context/internal/watch"
)

// ServerName is reported to clients during initialisation.
const ServerName = "personal-context"

// Resource addressing.
const (
	Scheme      = "personal-context://"
	FullURI     = Scheme + "full"
	AllURI      = Scheme + service.AllSections
	TemplateURI = Scheme + "{section}"
	MIMEType    = "application/json"
)

const resourceUpdated = "notifications/resources/updated"

const instructions = `This server holds a personal context document about the user: facts, preferences and instructions.
Read personal-context://full at session start and follow the rules in its "instruction" section.
When you learn something new and durable about the user, call updateContext with a dot-separated path, the new value and a short reason.` //nolint:lll

const updateDescription = `Update a field of the user's personal context. The path is dot-separated (for example "preferences.learning_style"); missing intermediate sections are created. Every update is recorded in the change history with its reason.` //nolint:lll

const getDescription = `Read the user's personal context after privacy filtering. Pass a section name to read a single top-level section, or omit it (or pass "all") for the whole document. Privacy rules hide sections and fields but not metadata.change_history, which keeps the values of past updates.` //nolint:lll

// NewServer creates an MCP server exposing svc and registers its resources
// and tools. It is separate from Serve so that tests and other callers can
// obtain a fully configured server without committing to the stdio transport.
func NewServer(svc *service.Service) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(ServerName, buildinfo.Version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)

	h := &handler{svc: svc, srv: s, sections: make(map[string]struct{})}
	h.registerResources()
	h.registerTools()
	h.syncSections(context.Background())
	svc.OnChange(h.changed)
	return s
}

// Serve starts the stdio MCP server for the context home at home (resolved
// via config when empty), blocking until stdin closes or ctx is cancelled.
func Serve(ctx context.Context, home string) error {
	svc, err := service.New(home)
	if err != nil {
		return fmt.Errorf("mcp: init service: %w", err)
	}
	defer svc.Close()

	s := NewServer(svc)

	if path, ok := svc.StorePath(); ok && svc.Config.Server.Watch {
		w, err := watch.New(path, func() { svc.Notify("") })
		if err != nil {
			slog.Warn("mcp: file watching disabled", "err", err)
		} else {
			defer w.Close()
			go func() {
				if err := w.Run(ctx); err != nil {
					slog.Warn("mcp: watcher stopped", "err", err)
				}
			}()
		}
	}

	slog.Info("serving personal context over stdio", "home", svc.Home)
	return mcpserver.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

// SectionURI returns the resource URI for a top-level section.
func SectionURI(name string) string {
	return Scheme + url.PathEscape(name)
}

// sectionFromURI extracts the section name from a personal-context:// URI.
func sectionFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok || rest == "" {
		return "", fmt.Errorf("unsupported resource URI %q", uri)
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("unsupported resource URI %q: %w", uri, err)
	}
	return name, nil
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

type handler struct {
	svc *service.Service
	srv *mcpserver.MCPServer

	mu       sync.Mutex
	sections map[string]struct{} // section resources currently registered
}

func (h *handler) registerResources() {
	h.srv.AddResource(mcp.NewResource(FullURI, "Complete Context",
		mcp.WithResourceDescription("The complete personal context document after privacy filtering. metadata.change_history is not filtered."),
		mcp.WithMIMEType(MIMEType),
	), h.readFull)

	h.srv.AddResource(mcp.NewResource(AllURI, "All Sections",
		mcp.WithResourceDescription("Every section of the personal context; same content as "+FullURI+"."),
		mcp.WithMIMEType(MIMEType),
	), h.readSection)

	h.srv.AddResourceTemplate(mcp.NewResourceTemplate(TemplateURI, "Context Section",
		mcp.WithTemplateDescription("A single top-level section of the personal context."),
		mcp.WithTemplateMIMEType(MIMEType),
	), h.readSection)
}

func (h *handler) readFull(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc, err := h.svc.Context(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, doc)
}

func (h *handler) readSection(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name, err := sectionFromURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	doc, err := h.svc.Section(ctx, name)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, doc)
}

func jsonContents(uri string, doc document.Document) ([]mcp.ResourceContents, error) {
	text, err := service.Render(doc, service.FormatJSON)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: MIMEType, Text: text},
	}, nil
}

// syncSections registers one resource per section of the filtered view and
// drops resources for sections that disappeared.
func (h *handler) syncSections(ctx context.Context) {
	names, err := h.svc.Sections(ctx)
	if err != nil {
		slog.Warn("mcp: list sections", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	want := make(map[string]struct{}, len(names))
	for _, name := range names {
		want[name] = struct{}{}
		if _, ok := h.sections[name]; ok {
			continue
		}
		// full and all are fixed resources and shadow same-named sections.
		if name == "full" || name == service.AllSections {
			continue
		}
		h.srv.AddResource(mcp.NewResource(SectionURI(name), name,
			mcp.WithResourceDescription(fmt.Sprintf("The %q section of the personal context.", name)),
			mcp.WithMIMEType(MIMEType),
		), h.readSection)
		h.sections[name] = struct{}{}
	}
	for name := range h.sections {
		if _, ok := want[name]; !ok {
			h.srv.RemoveResource(SectionURI(name))
			delete(h.sections, name)
		}
	}
}

// registeredSections returns the section resources currently registered.
func (h *handler) registeredSections() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.sections))
	for name := range h.sections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// changed runs after every update and every external edit. path is the
// updated dot-path, or "" when unknown.
func (h *handler) changed(path string) {
	h.syncSections(context.Background())

	uris := []string{FullURI, AllURI}
	if path != "" {
		segments, _ := document.SplitPath(path)
		uris = append(uris, SectionURI(segments[0]))
	} else {
		for _, name := range h.registeredSections() {
			uris = append(uris, SectionURI(name))
		}
	}
	for _, uri := range uris {
		h.srv.SendNotificationToAllClients(resourceUpdated, map[string]any{"uri": uri})
	}
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func (h *handler) registerTools() {
	h.srv.AddTool(mcp.NewTool("updateContext",
		mcp.WithDescription(updateDescription),
		mcp.WithString("path",
			mcp.Description(`Dot-separated field path, e.g. "preferences.learning_style".`),
			mcp.Required(),
		),
		mcp.WithString("value",
			mcp.Description("New value for the field."),
			mcp.Required(),
		),
		mcp.WithString("reason",
			mcp.Description("Why the field is being changed."),
			mcp.Required(),
		),
	), h.handleUpdate)

	h.srv.AddTool(mcp.NewTool("getContext",
		mcp.WithDescription(getDescription),
		mcp.WithString("section",
			mcp.Description(`Top-level section name, or "all".`),
		),
	), h.handleGet)
}

func (h *handler) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	reason := req.GetString("reason", "")

	value, ok := req.GetArguments()["value"]
	if !ok {
		return updateError(errors.New("value is required")), nil
	}

	res, err := h.svc.Update(ctx, path, value, reason)
	if err != nil {
		return updateError(err), nil
	}
	return mcp.NewToolResultText(res.Message()), nil
}

func updateError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error updating context: " + err.Error())
}

func (h *handler) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	section := req.GetString("section", "")
	if section == "" {
		section = service.AllSections
	}

	doc, err := h.svc.Section(ctx, section)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := service.Render(doc, service.FormatJSON)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}
