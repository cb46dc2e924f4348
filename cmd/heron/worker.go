package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/decision"
	"github.com/opensource-finance/heron/internal/repository"
	"github.com/opensource-finance/heron/internal/worker"
)

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Match alerts delivered over the event bus",
		Long: `Run a long-lived worker that consumes alerts from the event bus,
matches them against the repository, claims auto-matched transactions and
publishes each decision. Stops on SIGINT or SIGTERM.`,
		RunE: runWorker,
	}

	cmd.Flags().Int("max-concurrent", 0, "alerts processed at once")
	_ = v.BindPFlag("worker.max_concurrent", cmd.Flags().Lookup("max-concurrent"))

	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	slog.Info("starting heron worker",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize claim store
	store, err := openClaimStore(cfg.Claims, repo)
	if err != nil {
		return err
	}
	defer closeClaimStore(store)
	slog.Info("claim store initialized", "type", cfg.Claims.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)
	if cfg.EventBus.Type == "channel" {
		slog.Warn("channel bus only carries in-process messages; use nats to receive alerts from other processes")
	}

	engine, err := decision.New(cfg.Matching, repo)
	if err != nil {
		return err
	}

	w, err := worker.NewWorker(busImpl, repo, engine, store)
	if err != nil {
		return err
	}
	if err := w.Start(cfg.Worker); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	// Log periodic stats until shutdown
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case <-ticker.C:
			stats := w.GetStats()
			slog.Info("worker stats",
				"processed", stats.Processed,
				"failed", stats.Failed,
				"subscriptions", stats.SubscriptionCount,
			)
		}
	}
}
