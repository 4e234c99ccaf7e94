// Package cli implements the uthreads command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/internal/config"
	"github.com/me/uthreads/internal/logging"
)

var (
	flagConfig    string
	flagDB        string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// defaultServer returns the inspector URL from UTHREADS_SERVER, or "" to
// read the local database.
func defaultServer() string {
	return os.Getenv("UTHREADS_SERVER")
}

// NewRootCmd creates the root cobra command for the uthreads CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uthreads",
		Short: "uthreads - user-level thread scheduler",
		Long:  "uthreads runs scripted thread scenarios on a preemptive user-level scheduler and inspects recorded runs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("db") {
				cfg.DBPath = flagDB
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (default ~/.uthreads/uthreads.db)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Inspector URL to query instead of the local database (or UTHREADS_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newEventsCmd(),
		newServeCmd(),
	)

	return root
}
