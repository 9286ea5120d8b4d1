// Package initcmd implements the `pctx init` command.
package initcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/document"
	"github.com/go-ports/personal-context/internal/service"
)

// Command implements `pctx init`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the init command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "init",
		Short: "Create the context home and seed the context document",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	home, _ := c.ctx.ResolveHome()
	if _, err := config.WriteTemplate(service.ConfigPath(home), false); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	svc, err := service.New(home)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// Loading seeds the default document on first use.
	doc, err := svc.Raw(cmd.Context())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := document.Validate(doc); err != nil {
		return fmt.Errorf("init: existing context document: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Personal context initialized at %s\n", svc.Home)
	return nil
}
