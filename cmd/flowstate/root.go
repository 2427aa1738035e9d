package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrijr/flowstate/internal/config"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configPath string

	cfg    *config.Config
	logger *slog.Logger

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		out:    out,
		errOut: errOut,
	}

	rootCmd := &cobra.Command{
		Use:           "flowstate",
		Short:         "Drive workflow state machine instances",
		SilenceUsage:  true, // Don't print usage on error
		SilenceErrors: false,
		Long: `flowstate creates workflow instances and moves them through the
CREATED -> VALIDATED -> PROCESSING -> COMPLETED lifecycle (or to FAILED from
any non-terminal state), persisting them in the configured backend.

Configuration is read from --config (YAML), FLOWSTATE_* environment variables
and the flags below, with flags taking precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file path (YAML)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("backend", "sqlite", "Store backend (memory, sqlite, postgres, redis, mongo)")
	flags.String("dsn", "flowstate.db", "Backend DSN: file path, postgres URL, redis address or mongo URI")
	flags.String("table", "", "YAML transition table to use instead of the default lifecycle")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("store.backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("store.dsn", flags.Lookup("dsn"))
	_ = a.v.BindPFlag("table.path", flags.Lookup("table"))

	rootCmd.AddCommand(
		newDemoCmd(a),
		newTableCmd(a),
		newCreateCmd(a),
		newApplyCmd(a),
		newShowCmd(a),
		newListCmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = cfg.Log.NewLogger(a.errOut)
	return nil
}
