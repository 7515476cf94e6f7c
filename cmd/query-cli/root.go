package main

import (
	"os"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
	JSONLogs   bool
}

// NewRootCommand creates the query-cli command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "query-cli",
		Short: "Keep a remote JSON resource cached and fresh",
		Long: `query-cli drives the query engine from the command line.

Configuration is read from --config (YAML), then from GOQUERY_* environment
variables, then from command flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error, none)")
	cmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "log as JSON lines")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	return cmd
}

// loadConfig layers the config file and the environment over the defaults.
func (o *RootOptions) loadConfig() (query.Config, error) {
	cfg := query.DefaultConfig()
	if o.ConfigFile != "" {
		f, err := os.Open(o.ConfigFile)
		if err != nil {
			return cfg, errors.Wrap(err, "open config")
		}
		defer f.Close()
		if cfg, err = query.LoadConfig(f); err != nil {
			return cfg, err
		}
	}
	return query.ConfigFromEnv(cfg)
}

func (o *RootOptions) logger() logger.Logger {
	level := logger.ParseLevel(o.LogLevel, logger.GetLevelFromEnv())
	if o.JSONLogs {
		return logger.NewJSONLoggerWithSink(os.Stderr, level)
	}
	return logger.NewConsoleLogger(level)
}
