// Package setup registers and unregisters the personal-context MCP server
// with supported coding agents (Claude Code, Cursor, Codex, OpenCode).
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ServerName is the entry name written into agent configuration.
const ServerName = "personal-context"

// DefaultCommand is the executable agents launch.
const DefaultCommand = "pctx"

// Agent identifies a supported coding agent.
type Agent string

// Supported agents.
const (
	ClaudeCode Agent = "claude-code"
	Cursor     Agent = "cursor"
	Codex      Agent = "codex"
	OpenCode   Agent = "opencode"
)

// Agents lists every supported agent in display order.
func Agents() []Agent {
	return []Agent{ClaudeCode, Cursor, Codex, OpenCode}
}

// ParseAgent validates an agent name.
func ParseAgent(name string) (Agent, error) {
	for _, a := range Agents() {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q (supported: claude-code, cursor, codex, opencode)", name)
}

// Options control where and how the server entry is written.
type Options struct {
	// ConfigDir overrides the agent's user-level config directory
	// (~, ~/.cursor, ~/.codex, ~/.config/opencode).
	ConfigDir string
	// Project writes the project-scoped config under ProjectDir instead.
	// Codex has no project scope and ignores it.
	Project    bool
	ProjectDir string // default: current directory
	// Command defaults to DefaultCommand.
	Command string
	// ContextHome, when set, is passed to the server as --home.
	ContextHome string
}

// Result is the return value from Install and Uninstall.
type Result struct {
	Status  string // always "ok"
	Message string
}

func ok(msg string) Result          { return Result{Status: "ok", Message: msg} }
func okf(f string, a ...any) Result { return ok(fmt.Sprintf(f, a...)) }

// Install adds the server entry to agent's configuration.
func Install(agent Agent, opts Options) (Result, error) {
	switch agent {
	case ClaudeCode, Cursor, OpenCode:
		return installJSON(agent, opts)
	case Codex:
		return installCodex(opts)
	default:
		return Result{}, fmt.Errorf("setup.Install: unknown agent %q", agent)
	}
}

// Uninstall removes the server entry from agent's configuration.
func Uninstall(agent Agent, opts Options) (Result, error) {
	switch agent {
	case ClaudeCode, Cursor, OpenCode:
		return uninstallJSON(agent, opts)
	case Codex:
		return uninstallCodex(opts)
	default:
		return Result{}, fmt.Errorf("setup.Uninstall: unknown agent %q", agent)
	}
}

// ---------------------------------------------------------------------------
// Server entry
// ---------------------------------------------------------------------------

func (o Options) command() string {
	if o.Command == "" {
		return DefaultCommand
	}
	return o.Command
}

func (o Options) args() []string {
	args := []string{"mcp"}
	if o.ContextHome != "" {
		args = append(args, "--home", o.ContextHome)
	}
	return args
}

// entry returns the JSON server entry for agent.
func (o Options) entry(agent Agent) map[string]any {
	if agent == OpenCode {
		cmd := []any{o.command()}
		for _, a := range o.args() {
			cmd = append(cmd, a)
		}
		return map[string]any{"type": "local", "command": cmd}
	}
	args := make([]any, 0, 3)
	for _, a := range o.args() {
		args = append(args, a)
	}
	return map[string]any{"type": "stdio", "command": o.command(), "args": args}
}

// ---------------------------------------------------------------------------
// Config locations
// ---------------------------------------------------------------------------

func userDir(override string, elem ...string) string {
	if override != "" {
		return override
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(append([]string{home}, elem...)...)
}

func (o Options) projectDir() string {
	if o.ProjectDir != "" {
		return o.ProjectDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// ConfigPath returns the file Install writes for agent.
func ConfigPath(agent Agent, opts Options) string {
	switch agent {
	case ClaudeCode:
		if opts.Project {
			return filepath.Join(opts.projectDir(), ".mcp.json")
		}
		return filepath.Join(userDir(opts.ConfigDir), ".claude.json")
	case Cursor:
		if opts.Project {
			return filepath.Join(opts.projectDir(), ".cursor", "mcp.json")
		}
		return filepath.Join(userDir(opts.ConfigDir, ".cursor"), "mcp.json")
	case Codex:
		return filepath.Join(userDir(opts.ConfigDir, ".codex"), "config.toml")
	case OpenCode:
		if opts.Project {
			return filepath.Join(opts.projectDir(), "opencode.json")
		}
		return filepath.Join(userDir(opts.ConfigDir, ".config", "opencode"), "opencode.json")
	default:
		return ""
	}
}

// serversKey is the top-level JSON key holding MCP server entries.
func serversKey(agent Agent) string {
	if agent == OpenCode {
		return "mcp"
	}
	return "mcpServers"
}

// ---------------------------------------------------------------------------
// JSON configs (Claude Code, Cursor, OpenCode)
// ---------------------------------------------------------------------------

// readJSON returns an empty map for a missing or empty file. Malformed
// content is an error so that a user's config is never overwritten.
func readJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return make(map[string]any), nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func writeJSON(path string, data map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644) // #nosec G306 -- agent config files (MCP server entries) do not contain secrets
}

func installJSON(agent Agent, opts Options) (Result, error) {
	path := ConfigPath(agent, opts)
	data, err := readJSON(path)
	if err != nil {
		return Result{}, fmt.Errorf("setup.Install: %w", err)
	}

	key := serversKey(agent)
	servers, _ := data[key].(map[string]any)
	if servers == nil {
		servers = make(map[string]any)
		data[key] = servers
	}
	if _, exists := servers[ServerName]; exists {
		return ok("Already installed"), nil
	}
	servers[ServerName] = opts.entry(agent)

	if err := writeJSON(path, data); err != nil {
		return Result{}, fmt.Errorf("setup.Install: %w", err)
	}
	return okf("Installed: %s in %s", key, path), nil
}

func uninstallJSON(agent Agent, opts Options) (Result, error) {
	path := ConfigPath(agent, opts)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ok("Nothing to remove"), nil
	}
	data, err := readJSON(path)
	if err != nil {
		return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
	}

	key := serversKey(agent)
	servers, _ := data[key].(map[string]any)
	if _, exists := servers[ServerName]; !exists {
		return ok("Nothing to remove"), nil
	}
	delete(servers, ServerName)
	if len(servers) == 0 {
		delete(data, key)
	}

	if len(data) == 0 {
		if err := os.Remove(path); err != nil {
			return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
		}
	} else if err := writeJSON(path, data); err != nil {
		return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
	}
	return okf("Removed: %s from %s", key, path), nil
}

// ---------------------------------------------------------------------------
// Codex (config.toml + AGENTS.md)
// ---------------------------------------------------------------------------

const codexTable = "[mcp_servers." + ServerName + "]"

const agentsHeading = "## Personal Context"

const agentsSection = `
` + agentsHeading + `

The personal-context MCP server holds facts, preferences and instructions about the user.

- At session start, read the ` + "`personal-context://full`" + ` resource (or call ` + "`getContext`" + `) and follow its ` + "`instruction`" + ` section.
- When you learn something new and durable about the user, call ` + "`updateContext`" + ` with a dot-separated path, the value and a short reason.
- Never store API keys, secrets or credentials.
`

// decodeTOML parses a Codex config. A missing file decodes as empty.
func decodeTOML(path string) (map[string]any, []byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, data, nil
}

func hasCodexServer(raw map[string]any) bool {
	servers, _ := raw["mcp_servers"].(map[string]any)
	_, ok := servers[ServerName]
	return ok
}

func codexTOMLSection(opts Options) string {
	quoted := make([]string, 0, 3)
	for _, a := range opts.args() {
		quoted = append(quoted, strconv.Quote(a))
	}
	return fmt.Sprintf("\n%s\ncommand = %s\nargs = [%s]\n",
		codexTable, strconv.Quote(opts.command()), strings.Join(quoted, ", "))
}

func installCodex(opts Options) (Result, error) {
	tomlPath := ConfigPath(Codex, opts)
	raw, existing, err := decodeTOML(tomlPath)
	if err != nil {
		return Result{}, fmt.Errorf("setup.Install: %w", err)
	}

	var installed []string
	if !hasCodexServer(raw) {
		content := strings.TrimRight(string(existing), "\n")
		if content != "" {
			content += "\n"
		}
		content += codexTOMLSection(opts)
		if _, err := toml.Decode(content, new(map[string]any)); err != nil {
			return Result{}, fmt.Errorf("setup.Install: generated config.toml is invalid: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(tomlPath), 0o755); err != nil {
			return Result{}, fmt.Errorf("setup.Install: %w", err)
		}
		if err := os.WriteFile(tomlPath, []byte(content), 0o644); err != nil { // #nosec G306 -- agent TOML config is not a sensitive credential file
			return Result{}, fmt.Errorf("setup.Install: %w", err)
		}
		installed = append(installed, "config.toml")
	}

	agentsPath := filepath.Join(filepath.Dir(tomlPath), "AGENTS.md")
	agents, _ := os.ReadFile(agentsPath)
	if !strings.Contains(string(agents), agentsHeading) {
		content := strings.TrimRight(string(agents), "\n")
		if content != "" {
			content += "\n"
		}
		content += agentsSection
		if err := os.WriteFile(agentsPath, []byte(content), 0o644); err != nil { // #nosec G306 -- AGENTS.md does not contain secrets
			return Result{}, fmt.Errorf("setup.Install: %w", err)
		}
		installed = append(installed, "AGENTS.md")
	}

	if len(installed) == 0 {
		return ok("Already installed"), nil
	}
	return okf("Installed: %s", strings.Join(installed, ", ")), nil
}

// removeCodexTable drops the server table header and its key/value lines up
// to the next table header.
func removeCodexTable(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	inTable := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == codexTable {
			inTable = true
			continue
		}
		if inTable && strings.HasPrefix(trimmed, "[") {
			inTable = false
		}
		if !inTable {
			out = append(out, line)
		}
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// agentsSectionRe matches the Personal Context block up to the next H2 or EOF.
var agentsSectionRe = regexp.MustCompile(`(?s)\n*` + regexp.QuoteMeta(agentsHeading) + `\n.*?(\n## |\z)`)

// removeAgentsSection strips the Personal Context block from AGENTS.md
// content, keeping any following section.
func removeAgentsSection(content string) (string, bool) {
	if !strings.Contains(content, agentsHeading) {
		return content, false
	}
	cleaned := agentsSectionRe.ReplaceAllString(content, "$1")
	cleaned = strings.TrimPrefix(cleaned, "\n")
	return strings.TrimRight(cleaned, "\n") + "\n", true
}

func uninstallCodex(opts Options) (Result, error) {
	tomlPath := ConfigPath(Codex, opts)
	raw, existing, err := decodeTOML(tomlPath)
	if err != nil {
		return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
	}

	var removed []string
	if hasCodexServer(raw) {
		cleaned := removeCodexTable(string(existing))
		after := map[string]any{}
		if _, err := toml.Decode(cleaned, &after); err != nil || hasCodexServer(after) {
			return Result{}, fmt.Errorf("setup.Uninstall: cannot remove %s from %s; edit it by hand", codexTable, tomlPath)
		}
		if err := os.WriteFile(tomlPath, []byte(cleaned), 0o644); err != nil { // #nosec G306 -- agent TOML config is not a sensitive credential file
			return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
		}
		removed = append(removed, "config.toml")
	}

	agentsPath := filepath.Join(filepath.Dir(tomlPath), "AGENTS.md")
	if data, err := os.ReadFile(agentsPath); err == nil {
		if cleaned, changed := removeAgentsSection(string(data)); changed {
			if err := os.WriteFile(agentsPath, []byte(cleaned), 0o644); err != nil { // #nosec G306 -- AGENTS.md does not contain secrets
				return Result{}, fmt.Errorf("setup.Uninstall: %w", err)
			}
			removed = append(removed, "AGENTS.md")
		}
	}

	if len(removed) == 0 {
		return ok("Nothing to remove"), nil
	}
	return okf("Removed: %s", strings.Join(removed, ", ")), nil
}
