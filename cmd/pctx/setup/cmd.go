// Package setupcmd implements the `pctx setup` command.
package setupcmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/setup"
)

// Command implements `pctx setup`.
type Command struct {
	ctx     *shared.Context
	cmd     *cobra.Command
	options setup.Options
}

// New creates the setup command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:       "setup <agent>",
		Short:     "Register the personal context MCP server with an agent",
		Long:      "Register the personal context MCP server with an agent.\n\nAgents: " + agentList(),
		Args:      cobra.ExactArgs(1),
		ValidArgs: agentNames(),
		RunE:      c.run,
	}
	f := c.cmd.Flags()
	f.StringVar(&c.options.ConfigDir, "config-dir", "", "Agent configuration directory (default: the agent's user directory)")
	f.BoolVar(&c.options.Project, "project", false, "Install in the current project instead of globally")
	f.StringVar(&c.options.Command, "command", setup.DefaultCommand, "Executable the agent runs to start the server")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	agent, err := setup.ParseAgent(args[0])
	if err != nil {
		return err
	}
	opts := c.options
	opts.ContextHome = c.ctx.Home

	result, err := setup.Install(agent, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}

func agentNames() []string {
	agents := setup.Agents()
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return names
}

func agentList() string { return strings.Join(agentNames(), ", ") }
