// Package showcmd implements the `pctx show` command.
package showcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/markdown"
	"github.com/go-ports/personal-context/internal/service"
)

// Command implements `pctx show`.
type Command struct {
	ctx    *shared.Context
	cmd    *cobra.Command
	format string
	output string
}

// New creates the show command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "show [section|path]",
		Short: "Print the privacy-filtered context, or one section of it",
		Long: `Print the personal context after applying the privacy rules in its
instruction section. With a section name only that top-level section is
printed, and a dot-separated path prints a single field; "all" (the
default) prints the whole document.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.run,
	}
	c.cmd.Flags().StringVarP(&c.format, "format", "f", service.FormatJSON, "Output format: json, yaml or markdown")
	c.cmd.Flags().StringVarP(&c.output, "output", "o", "", "Write to this file instead of stdout")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	section := service.AllSections
	if len(args) == 1 {
		section = args[0]
	}

	svc, err := c.ctx.OpenService()
	if err != nil {
		return err
	}
	defer svc.Close()

	doc, err := svc.Field(cmd.Context(), section)
	if err != nil {
		return err
	}
	if service.IsSectionNotFound(doc) {
		return fmt.Errorf("show: section %q not found", section)
	}

	text, err := service.Render(doc, c.format)
	if err != nil {
		return err
	}

	if c.output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	if c.format == service.FormatMarkdown || c.format == "md" {
		err = markdown.Write(c.output, doc)
	} else {
		err = os.WriteFile(c.output, []byte(text+"\n"), 0o600)
	}
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", c.output)
	return nil
}
