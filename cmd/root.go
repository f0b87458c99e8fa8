// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the idkeeper command-line interface. Each subcommand
// builds the session controller from configuration, drives one operation
// through it and reports the outcome with pterm.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"idkeeper/cli/internal/config"
	"idkeeper/cli/internal/logging"
)

var (
	flagServiceURL string
	flagLogLevel   string
	flagVerbose    bool
	flagOffline    bool

	cfg config.Config
	log zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "idkeeper",
	Short:         "Keep an identity provider session alive on this machine",
	Long:          `idkeeper signs you in to an identity provider, stores the session in the OS keychain and keeps it validated while the network comes and goes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			os.Setenv("IDKEEPER_VERBOSE", "1")
		}
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagServiceURL != "" {
			c.ServiceURL = flagServiceURL
		}
		if flagLogLevel != "" {
			c.LogLevel = flagLogLevel
		}
		cfg = c
		log = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
}

// Execute runs the CLI application. SIGINT and SIGTERM cancel the command
// context so in-flight work can wind down.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("", err))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServiceURL, "service-url", "", "Identity provider base URL (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose debug output")
	pf.BoolVar(&flagOffline, "offline", false, "Never contact the network to check reachability")
}
