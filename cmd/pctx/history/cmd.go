// Package historycmd implements the `pctx history` command.
package historycmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/document"
	"github.com/go-ports/personal-context/internal/service"
)

// Command implements `pctx history`.
type Command struct {
	ctx     *shared.Context
	cmd     *cobra.Command
	limit   int
	asJSON  bool
	section string
}

// New creates the history command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded changes, newest first",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	c.cmd.Flags().IntVarP(&c.limit, "limit", "n", 20, "Maximum number of changes to show (0 = all)")
	c.cmd.Flags().BoolVar(&c.asJSON, "json", false, "Print the records as JSON")
	c.cmd.Flags().StringVar(&c.section, "section", "", "Only show changes under this top-level section")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	svc, err := c.ctx.OpenService()
	if err != nil {
		return err
	}
	defer svc.Close()

	// Filter before limiting so --limit counts matching records.
	records, err := svc.History(cmd.Context(), 0)
	if err != nil {
		return err
	}
	records = filterSection(records, c.section)
	if c.limit > 0 && len(records) > c.limit {
		records = records[:c.limit]
	}

	out := cmd.OutOrStdout()
	if c.asJSON {
		entries := make([]any, 0, len(records))
		for _, r := range records {
			entries = append(entries, r.Map())
		}
		text, err := service.Render(document.Document{"change_history": entries}, service.FormatJSON)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No changes recorded.")
		return nil
	}
	for _, r := range records {
		prev := "(unset)"
		if r.HadPrevious {
			prev = service.FormatValue(r.PreviousValue)
		}
		fmt.Fprintf(out, "%s  %s: %s -> %s\n", r.Timestamp, r.Path, prev, service.FormatValue(r.NewValue))
		if r.Reason != "" {
			fmt.Fprintf(out, "    %s\n", r.Reason)
		}
	}
	return nil
}

func filterSection(records []document.ChangeRecord, section string) []document.ChangeRecord {
	if section == "" {
		return records
	}
	var out []document.ChangeRecord
	for _, r := range records {
		segments, err := document.SplitPath(r.Path)
		if err == nil && segments[0] == section {
			out = append(out, r)
		}
	}
	return out
}
