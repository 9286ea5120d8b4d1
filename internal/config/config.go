// Package config handles configuration loading and context home resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// HomeEnv overrides the context home directory.
const HomeEnv = "PCTX_HOME"

// ---------------------------------------------------------------------------
// Config types
// ---------------------------------------------------------------------------

// StorageConfig selects where the context document lives.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file sqlite"`
	Path    string `yaml:"path"` // relative paths resolve against the context home
}

// PrivacyConfig controls write-time scrubbing.
type PrivacyConfig struct {
	RedactSecrets bool   `yaml:"redact_secrets"`
	IgnoreFile    string `yaml:"ignore_file"` // default <home>/.contextignore
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// ServerConfig controls the MCP server.
type ServerConfig struct {
	Watch bool `yaml:"watch"` // notify clients when the context file changes on disk
}

// Config is the root per-home configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: BackendFile},
		Privacy: PrivacyConfig{RedactSecrets: true},
		Log:     LogConfig{Level: "info"},
		Server:  ServerConfig{Watch: true},
	}
}

var validate = validator.New()

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load reads a per-home config.yaml from path.
// If the file does not exist it returns Default() with no error.
// Missing keys retain their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	// Unmarshal into a plain map so we can apply only the keys that are present.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		if v, ok := st["backend"].(string); ok && v != "" {
			cfg.Storage.Backend = v
		}
		if v, ok := st["path"].(string); ok {
			cfg.Storage.Path = v
		}
	}

	if pr, ok := raw["privacy"].(map[string]any); ok {
		if v, ok := pr["redact_secrets"].(bool); ok {
			cfg.Privacy.RedactSecrets = v
		}
		if v, ok := pr["ignore_file"].(string); ok {
			cfg.Privacy.IgnoreFile = v
		}
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v, ok := lg["level"].(string); ok && v != "" {
			cfg.Log.Level = strings.ToLower(v)
		}
		if v, ok := lg["file"].(string); ok {
			cfg.Log.File = v
		}
	}

	if sv, ok := raw["server"].(map[string]any); ok {
		if v, ok := sv["watch"].(bool); ok {
			cfg.Server.Watch = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Template is the starter per-home config.yaml. Every value matches Default.
const Template = `# Personal context configuration

storage:
  backend: file                 # file | sqlite
  path: ""                      # default <home>/personal_context.json or <home>/context.db

privacy:
  redact_secrets: true          # scrub API keys and tokens from written values
  ignore_file: ""               # extra patterns, default <home>/.contextignore

log:
  level: info                   # debug | info | warn | error
  file: ""                      # optional JSON log file

server:
  watch: true                   # notify MCP clients when the file changes on disk
`

// WriteTemplate writes Template to path unless a file already exists there
// and force is false. It reports whether the file was written.
//
//revive:disable-next-line:flag-parameter
func WriteTemplate(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return false, err
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Context home resolution
// ---------------------------------------------------------------------------

// globalConfigPath returns the path to the global config file.
// This file stores only context_home (and future global settings).
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "personal-context", "config.yaml"), nil
}

// normalizePath expands ~ and makes the path absolute.
func normalizePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(os.ExpandEnv(path))
}

// ResolveHome returns the context home path and the source of the resolution.
// Priority: PCTX_HOME env → persisted global config → ~/.personal-context
// source is one of "env", "config", or "default".
func ResolveHome() (path, source string) {
	if env := os.Getenv(HomeEnv); env != "" {
		p, err := normalizePath(env)
		if err == nil {
			return p, "env"
		}
	}

	if persisted, ok, _ := GetPersistedHome(); ok {
		return persisted, "config"
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".personal-context"), "default"
}

// GetHome returns the resolved context home path.
func GetHome() string {
	path, _ := ResolveHome()
	return path
}

// GetPersistedHome reads context_home from the global config.
// Returns ("", false, nil) if not set.
func GetPersistedHome() (string, bool, error) {
	cfgPath, err := globalConfigPath()
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", false, nil
	}

	val, _ := raw["context_home"].(string)
	val = strings.TrimSpace(val)
	if val == "" {
		return "", false, nil
	}

	p, err := normalizePath(val)
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

// SetPersistedHome normalizes path and persists it in the global config.
// Returns the normalized path.
func SetPersistedHome(path string) (string, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return "", err
	}

	cfgPath, err := globalConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", err
	}

	// Read existing global config, preserving any other keys.
	var raw map[string]any
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	raw["context_home"] = normalized

	out, err := yaml.Marshal(raw)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		return "", err
	}
	return normalized, nil
}

// ClearPersistedHome removes context_home from the global config.
// Returns true if the key was present and removed.
// If the file becomes empty after removal it is deleted.
func ClearPersistedHome() (bool, error) {
	cfgPath, err := globalConfigPath()
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false, nil
	}

	if _, ok := raw["context_home"]; !ok {
		return false, nil
	}
	delete(raw, "context_home")

	if len(raw) == 0 {
		_ = os.Remove(cfgPath)
		return true, nil
	}

	out, err := yaml.Marshal(raw)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(cfgPath, out, 0o600)
}
