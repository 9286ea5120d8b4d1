// Package configcmd implements the `pctx config` command group.
package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-ports/personal-context/cmd/pctx/shared"
	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/service"
	"github.com/go-ports/personal-context/internal/store"
)

// Command implements `pctx config`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the config command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		Args:  cobra.NoArgs,
		RunE:  c.runShow,
	}
	c.cmd.AddCommand(
		newConfigInit(ctx),
		newSetHome(ctx),
		newClearHome(ctx),
	)
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

// view is the effective configuration as printed by `pctx config`.
type view struct {
	Storage    config.StorageConfig `yaml:"storage"`
	Privacy    config.PrivacyConfig `yaml:"privacy"`
	Log        config.LogConfig     `yaml:"log"`
	Server     config.ServerConfig  `yaml:"server"`
	Home       string               `yaml:"context_home"`
	HomeSource string               `yaml:"context_home_source"`
	StorePath  string               `yaml:"store_path"`
}

func (c *Command) runShow(cmd *cobra.Command, _ []string) error {
	home, source := c.ctx.ResolveHome()
	cfg, err := config.Load(service.ConfigPath(home))
	if err != nil {
		return err
	}
	v := view{
		Storage:    cfg.Storage,
		Privacy:    cfg.Privacy,
		Log:        cfg.Log,
		Server:     cfg.Server,
		Home:       home,
		HomeSource: source,
		StorePath:  store.ResolvePath(cfg.Storage, home),
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(b))
	return nil
}

// ---------------------------------------------------------------------------
// config init
// ---------------------------------------------------------------------------

func newConfigInit(ctx *shared.Context) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := ctx.ResolveHome()
			cfgPath := service.ConfigPath(home)
			out := cmd.OutOrStdout()
			written, err := config.WriteTemplate(cfgPath, force)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintf(out, "Config already exists at %s\n", cfgPath)
				fmt.Fprintln(out, "Use --force to overwrite.")
				return nil
			}
			fmt.Fprintf(out, "Created %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	return cmd
}

// ---------------------------------------------------------------------------
// config set-home
// ---------------------------------------------------------------------------

func newSetHome(_ *shared.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "set-home <path>",
		Short: "Persist the context home location (used when PCTX_HOME is unset)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := config.SetPersistedHome(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Persisted context home: %s\n", resolved)
			fmt.Fprintf(out, "Override anytime with %s.\n", config.HomeEnv)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// config clear-home
// ---------------------------------------------------------------------------

func newClearHome(_ *shared.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-home",
		Short: "Remove the persisted context home location from global config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed, err := config.ClearPersistedHome()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if changed {
				fmt.Fprintln(out, "Cleared persisted context home setting.")
			} else {
				fmt.Fprintln(out, "No persisted context home setting was found.")
			}
			return nil
		},
	}
}
