// Package rootcmd wires the root cobra.Command for the pctx CLI binary.
package rootcmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	configcmd "github.com/go-ports/personal-context/cmd/pctx/config"
	historycmd "github.com/go-ports/personal-context/cmd/pctx/history"
	initcmd "github.com/go-ports/personal-context/cmd/pctx/init"
	mcpcmd "github.com/go-ports/personal-context/cmd/pctx/mcp"
	setcmd "github.com/go-ports/personal-context/cmd/pctx/set"
	setupcmd "github.com/go-ports/personal-context/cmd/pctx/setup"
	"github.com/go-ports/personal-context/cmd/pctx/shared"
	showcmd "github.com/go-ports/personal-context/cmd/pctx/show"
	uninstallcmd "github.com/go-ports/personal-context/cmd/pctx/uninstall"
	versioncmd "github.com/go-ports/personal-context/cmd/pctx/version"
	"github.com/go-ports/personal-context/internal/buildinfo"
	"github.com/go-ports/personal-context/internal/config"
	"github.com/go-ports/personal-context/internal/logging"
	"github.com/go-ports/personal-context/internal/service"
)

// New creates and returns the root cobra.Command for the pctx CLI.
func New() *cobra.Command {
	ctx := &shared.Context{}

	root := &cobra.Command{
		Use:           "pctx",
		Short:         "Personal context server for AI agents",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd, ctx)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return ctx.CloseLog()
		},
	}

	root.PersistentFlags().StringVar(
		&ctx.Home, "home", "",
		"Override context home directory (default: $PCTX_HOME env → persisted config → ~/.personal-context)",
	)
	root.PersistentFlags().StringVar(
		&ctx.LogLevel, "log-level", "",
		"Log level: debug, info, warn or error (default: log.level from config.yaml)",
	)

	root.AddCommand(
		initcmd.New(ctx).Cmd(),
		showcmd.New(ctx).Cmd(),
		setcmd.New(ctx).Cmd(),
		historycmd.New(ctx).Cmd(),
		configcmd.New(ctx).Cmd(),
		setupcmd.New(ctx).Cmd(),
		uninstallcmd.New(ctx).Cmd(),
		mcpcmd.New(ctx).Cmd(),
		versioncmd.New(ctx).Cmd(),
	)

	return root
}

// setupLogging installs the default slog logger from the home config. A
// broken config.yaml falls back to defaults so that `pctx config init
// --force` can still repair it.
func setupLogging(cmd *cobra.Command, ctx *shared.Context) error {
	home, _ := ctx.ResolveHome()
	cfg, cfgErr := config.Load(service.ConfigPath(home))
	if cfgErr != nil {
		cfg = config.Default()
	}
	if ctx.LogLevel != "" {
		cfg.Log.Level = ctx.LogLevel
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx.SetLogCloser(closer)
	slog.SetDefault(logger)

	if cfgErr != nil {
		slog.Warn("ignoring unreadable config.yaml", "home", home, "err", cfgErr)
	}
	return nil
}
