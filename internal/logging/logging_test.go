package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/logging"
)

func TestNew_StderrOnly(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	logger, closeFn, err := logging.New(config.LogConfig{Level: "warn"}, &buf)
	c.Assert(err, qt.IsNil)
	defer closeFn()

	logger.Info("dropped")
	logger.Warn("kept", "path", "basic_info.name")

	out := buf.String()
	c.Assert(out, qt.Not(qt.Contains), "dropped")
	c.Assert(out, qt.Contains, "msg=kept")
	c.Assert(out, qt.Contains, "path=basic_info.name")
}

func TestNew_FanoutToFile(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "pctx.log")
	logger, closeFn, err := logging.New(config.LogConfig{Level: "debug", File: path}, &buf)
	c.Assert(err, qt.IsNil)

	logger.Debug("context updated", "path", "preferences.editor")
	c.Assert(closeFn(), qt.IsNil)

	c.Assert(buf.String(), qt.Contains, "context updated")

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	var line map[string]any
	c.Assert(json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line), qt.IsNil)
	c.Assert(line["msg"], qt.Equals, "context updated")
	c.Assert(line["level"], qt.Equals, "DEBUG")
	c.Assert(line["path"], qt.Equals, "preferences.editor")
}

func TestParseLevel(t *testing.T) {
	c := qt.New(t)

	for _, name := range []string{"debug", "INFO", "", "warn", "error"} {
		_, err := logging.ParseLevel(name)
		c.Assert(err, qt.IsNil, qt.Commentf("level %q", name))
	}

	_, err := logging.ParseLevel("verbose")
	c.Assert(err, qt.ErrorMatches, `logging: unknown level "verbose"`)
}
