// Package uninstallcmd implements the `pctx uninstall` command.
package uninstallcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/setup"
)

// Command implements `pctx uninstall`.
type Command struct {
	ctx     *shared.Context
	cmd     *cobra.Command
	options setup.Options
}

// New creates the uninstall command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "uninstall <agent>",
		Short: "Remove the personal context MCP server from an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}
	f := c.cmd.Flags()
	f.StringVar(&c.options.ConfigDir, "config-dir", "", "Agent configuration directory (default: the agent's user directory)")
	f.BoolVar(&c.options.Project, "project", false, "Uninstall from the current project instead of globally")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	agent, err := setup.ParseAgent(args[0])
	if err != nil {
		return err
	}
	result, err := setup.Uninstall(agent, c.options)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}
