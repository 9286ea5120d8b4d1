// Package shared holds the context passed to all CLI commands.
package shared

import (
	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/service"
)

// Context carries global CLI state (flags set on the root command).
type Context struct {
	// Home overrides the context home directory.
	// When empty, resolution falls through to PCTX_HOME env var → persisted config → ~/.personal-context.
	Home string

	// LogLevel overrides log.level from the home config.
	LogLevel string

	// closeLog releases the log file opened by the root command, if any.
	closeLog func() error
}

// ResolveHome returns the context home in effect and where it came from.
func (c *Context) ResolveHome() (path, source string) {
	if c.Home != "" {
		return c.Home, "flag"
	}
	return config.ResolveHome()
}

// OpenService opens the service for the context home in effect.
func (c *Context) OpenService() (*service.Service, error) {
	home, _ := c.ResolveHome()
	return service.New(home)
}

// SetLogCloser records the function that releases the log output.
func (c *Context) SetLogCloser(fn func() error) { c.closeLog = fn }

// CloseLog releases the log output. It is safe to call more than once.
func (c *Context) CloseLog() error {
	if c.closeLog == nil {
		return nil
	}
	fn := c.closeLog
	c.closeLog = nil
	return fn()
}
