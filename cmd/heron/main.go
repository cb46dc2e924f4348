// Heron - Reconciliation matching for bank alerts and transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/heron/internal/config"
	"github.com/opensource-finance/heron/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	cfgFile string
	v       = viper.New()

	// cfg is loaded once per invocation by initConfig.
	cfg *domain.Config
)

var rootCmd = &cobra.Command{
	Use:   "heron",
	Short: "Match bank alerts to transactions",
	Long: `Heron reconciles bank alerts against a pool of transactions.
Each alert is scored against its candidates by a fixed set of weighted
rules and classified as auto_matched, needs_review, rejected or
no_candidates.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "heron %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./heron.yaml or $HOME/.config/heron/heron.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(configCmd())
}

func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := config.SetupLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}

	slog.Debug("configuration loaded",
		"repository", cfg.Repository.Driver,
		"claims", cfg.Claims.Type,
		"eventbus", cfg.EventBus.Type,
	)
	return nil
}

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
