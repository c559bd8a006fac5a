// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package cli implements the dynq command line tool, which runs dynamic
// queries over data sets read from YAML files.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "yaml" | "json"
	// Workers bounds the expressions compiled at once by check. Zero means
	// one per CPU.
	Workers    int
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"yaml", "json"}

// NewRootCommand creates the root command for the dynq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dynq",
		Short: "dynq - dynamic queries over Go records",
		Long: `Run filter, sort, projection and grouping expressions over a data set.

The data set is a YAML file listing typed fields and the records holding
them. Settings are read from flags, from DYNQ_ environment variables and from
an optional config file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, opts); err != nil {
				return err
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "yaml", "output format (yaml|json)")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 0, "expressions compiled at once by check (0 for one per CPU)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml or toml)")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewTreeCommand(opts))

	return cmd
}

// loadConfig resolves the global settings. Flags set on the command line win
// over DYNQ_ environment variables, which win over the config file.
func loadConfig(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	v.SetEnvPrefix("DYNQ")
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return WrapExitError(ExitCommandError, "cannot read config", err)
		}
	}
	for _, key := range []string{"format", "verbose", "workers"} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return WrapExitError(ExitCommandError, "cannot bind flag "+key, err)
		}
	}

	opts.Format = v.GetString("format")
	opts.Verbose = v.GetBool("verbose")
	opts.Workers = v.GetInt("workers")
	return nil
}

// setupLogging installs the default logger. Logs go to w so that they never
// mix with query results.
func setupLogging(w io.Writer, opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
}
