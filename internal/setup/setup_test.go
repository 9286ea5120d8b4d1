package setup_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	qt "github.com/frankban/quicktest"

	"github.com/go-ports/personal-context/internal/setup"
)

// serverEntry decodes the JSON config at path and returns the
// personal-context entry under key, or nil.
func serverEntry(c *qt.C, path, key string) map[string]any {
	c.Helper()
	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	var m map[string]any
	c.Assert(json.Unmarshal(data, &m), qt.IsNil)
	servers, _ := m[key].(map[string]any)
	entry, _ := servers[setup.ServerName].(map[string]any)
	return entry
}

func jsonAgents() []struct {
	agent setup.Agent
	key   string
} {
	return []struct {
		agent setup.Agent
		key   string
	}{
		{setup.ClaudeCode, "mcpServers"},
		{setup.Cursor, "mcpServers"},
		{setup.OpenCode, "mcp"},
	}
}

// ---------------------------------------------------------------------------
// JSON agents (Claude Code, Cursor, OpenCode)
// ---------------------------------------------------------------------------

func TestInstall_JSONAgents(t *testing.T) {
	c := qt.New(t)

	for _, tc := range jsonAgents() {
		c.Run(string(tc.agent), func(c *qt.C) {
			opts := setup.Options{ConfigDir: c.TempDir()}

			res, err := setup.Install(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Status, qt.Equals, "ok")
			c.Assert(res.Message, qt.Contains, "Installed")

			path := setup.ConfigPath(tc.agent, opts)
			entry := serverEntry(c, path, tc.key)
			c.Assert(entry, qt.IsNotNil)
			if tc.agent == setup.OpenCode {
				c.Assert(entry["type"], qt.Equals, "local")
				c.Assert(entry["command"], qt.DeepEquals, []any{"pctx", "mcp"})
			} else {
				c.Assert(entry["type"], qt.Equals, "stdio")
				c.Assert(entry["command"], qt.Equals, "pctx")
				c.Assert(entry["args"], qt.DeepEquals, []any{"mcp"})
			}

			res, err = setup.Install(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Message, qt.Equals, "Already installed")
		})
	}
}

func TestInstall_PreservesOtherServers(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	opts := setup.Options{ConfigDir: dir}
	path := setup.ConfigPath(setup.ClaudeCode, opts)
	c.Assert(os.WriteFile(path, []byte(`{"theme":"dark","mcpServers":{"other":{"command":"x"}}}`), 0o600), qt.IsNil)

	_, err := setup.Install(setup.ClaudeCode, opts)
	c.Assert(err, qt.IsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	var m map[string]any
	c.Assert(json.Unmarshal(data, &m), qt.IsNil)
	c.Assert(m["theme"], qt.Equals, "dark")
	c.Assert(m["mcpServers"].(map[string]any), qt.HasLen, 2)

	res, err := setup.Uninstall(setup.ClaudeCode, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message, qt.Contains, "Removed")

	data, err = os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, `"other"`)
	c.Assert(string(data), qt.Not(qt.Contains), setup.ServerName)
}

func TestInstall_ProjectScopeAndHome(t *testing.T) {
	c := qt.New(t)

	project := t.TempDir()
	opts := setup.Options{Project: true, ProjectDir: project, Command: "/usr/local/bin/pctx", ContextHome: "/data/ctx"}

	_, err := setup.Install(setup.ClaudeCode, opts)
	c.Assert(err, qt.IsNil)
	entry := serverEntry(c, filepath.Join(project, ".mcp.json"), "mcpServers")
	c.Assert(entry["command"], qt.Equals, "/usr/local/bin/pctx")
	c.Assert(entry["args"], qt.DeepEquals, []any{"mcp", "--home", "/data/ctx"})

	_, err = setup.Install(setup.Cursor, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(serverEntry(c, filepath.Join(project, ".cursor", "mcp.json"), "mcpServers"), qt.IsNotNil)

	_, err = setup.Install(setup.OpenCode, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(serverEntry(c, filepath.Join(project, "opencode.json"), "mcp"), qt.IsNotNil)
}

func TestUninstall_JSONAgents(t *testing.T) {
	c := qt.New(t)

	for _, tc := range jsonAgents() {
		c.Run(string(tc.agent), func(c *qt.C) {
			opts := setup.Options{ConfigDir: c.TempDir()}

			res, err := setup.Uninstall(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Message, qt.Equals, "Nothing to remove")

			_, err = setup.Install(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			res, err = setup.Uninstall(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Message, qt.Contains, "Removed")

			// The file only held our entry, so it is gone.
			_, err = os.Stat(setup.ConfigPath(tc.agent, opts))
			c.Assert(os.IsNotExist(err), qt.IsTrue)

			res, err = setup.Install(tc.agent, opts)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Message, qt.Contains, "Installed")
		})
	}
}

func TestInstall_MalformedJSONIsRefused(t *testing.T) {
	c := qt.New(t)

	opts := setup.Options{ConfigDir: t.TempDir()}
	path := setup.ConfigPath(setup.Cursor, opts)
	c.Assert(os.MkdirAll(filepath.Dir(path), 0o755), qt.IsNil)
	c.Assert(os.WriteFile(path, []byte(`{"mcpServers": `), 0o600), qt.IsNil)

	_, err := setup.Install(setup.Cursor, opts)
	c.Assert(err, qt.ErrorMatches, `setup.Install: .*mcp.json: .*`)

	data, _ := os.ReadFile(path)
	c.Assert(string(data), qt.Equals, `{"mcpServers": `)
}

// ---------------------------------------------------------------------------
// Codex
// ---------------------------------------------------------------------------

func decodeCodex(c *qt.C, dir string) map[string]any {
	c.Helper()
	var raw map[string]any
	_, err := toml.DecodeFile(filepath.Join(dir, "config.toml"), &raw)
	c.Assert(err, qt.IsNil)
	return raw
}

func TestInstall_Codex(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	existing := "model = \"o4-mini\"\n\n[mcp_servers.other]\ncommand = \"other\"\n"
	c.Assert(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(existing), 0o600), qt.IsNil)
	opts := setup.Options{ConfigDir: dir}

	res, err := setup.Install(setup.Codex, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message, qt.Equals, "Installed: config.toml, AGENTS.md")

	raw := decodeCodex(c, dir)
	c.Assert(raw["model"], qt.Equals, "o4-mini")
	servers := raw["mcp_servers"].(map[string]any)
	c.Assert(servers["other"], qt.IsNotNil)
	entry := servers[setup.ServerName].(map[string]any)
	c.Assert(entry["command"], qt.Equals, "pctx")
	c.Assert(entry["args"], qt.DeepEquals, []any{"mcp"})

	agents, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(agents), qt.Contains, "## Personal Context")

	res, err = setup.Install(setup.Codex, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message, qt.Equals, "Already installed")
}

func TestInstall_CodexMalformedTOMLIsRefused(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("model = \n"), 0o600), qt.IsNil)

	_, err := setup.Install(setup.Codex, setup.Options{ConfigDir: dir})
	c.Assert(err, qt.ErrorMatches, `setup.Install: .*config.toml: .*`)

	_, err = os.Stat(filepath.Join(dir, "AGENTS.md"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestUninstall_Codex(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	opts := setup.Options{ConfigDir: dir}

	res, err := setup.Uninstall(setup.Codex, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message, qt.Equals, "Nothing to remove")

	c.Assert(os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("# Agents\n\n## Style\nBe brief.\n"), 0o600), qt.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[mcp_servers.other]\ncommand = \"other\"\n"), 0o600), qt.IsNil)

	_, err = setup.Install(setup.Codex, opts)
	c.Assert(err, qt.IsNil)
	res, err = setup.Uninstall(setup.Codex, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Message, qt.Equals, "Removed: config.toml, AGENTS.md")

	raw := decodeCodex(c, dir)
	servers := raw["mcp_servers"].(map[string]any)
	_, has := servers[setup.ServerName]
	c.Assert(has, qt.IsFalse)
	c.Assert(servers["other"], qt.IsNotNil)

	agents, err := os.ReadFile(filepath.Join(dir, "AGENTS.md"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(agents), qt.Equals, "# Agents\n\n## Style\nBe brief.\n")
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func TestParseAgent(t *testing.T) {
	c := qt.New(t)

	for _, a := range setup.Agents() {
		got, err := setup.ParseAgent(string(a))
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, a)
	}

	_, err := setup.ParseAgent("vscode")
	c.Assert(err, qt.ErrorMatches, `unknown agent "vscode".*`)
	c.Assert(strings.Contains(err.Error(), "claude-code"), qt.IsTrue)
}
