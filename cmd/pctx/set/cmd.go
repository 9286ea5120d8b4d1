// Package setcmd implements the `pctx set` command.
package setcmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
)

// DefaultReason is recorded when --reason is not given.
const DefaultReason = "Updated from the command line"

// Command implements `pctx set`.
type Command struct {
	ctx       *shared.Context
	cmd       *cobra.Command
	reason    string
	jsonValue bool
}

// New creates the set command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set a field of the context document",
		Long: `Set the field at a dot-separated path, creating missing intermediate
sections. The change is recorded in metadata.change_history.

Examples:
  pctx set preferences.learning_style hands-on --reason "said so in chat"
  pctx set work.languages '["go","sql"]' --json`,
		Args: cobra.ExactArgs(2),
		RunE: c.run,
	}
	c.cmd.Flags().StringVarP(&c.reason, "reason", "r", DefaultReason, "Why the field is changing")
	c.cmd.Flags().BoolVar(&c.jsonValue, "json", false, "Parse the value as JSON instead of a plain string")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	var value any = args[1]
	if c.jsonValue {
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("set: --json value: %w", err)
		}
	}

	svc, err := c.ctx.OpenService()
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Update(cmd.Context(), args[0], value, c.reason)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message())
	return nil
}
