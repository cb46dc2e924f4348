package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/heron/internal/claims"
	"github.com/opensource-finance/heron/internal/decision"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/pool"
	"github.com/opensource-finance/heron/internal/repository"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a batch of alerts",
		Long: `Match every alert in a JSON file against a transaction pool.

The pool is read from --transactions when given, otherwise the configured
repository is used. Decisions are written as JSON to --out or stdout.`,
		RunE: runMatch,
	}

	cmd.Flags().String("alerts", "", "JSON file with an array of alerts (required)")
	cmd.Flags().String("transactions", "", "JSON file with an array of transactions")
	cmd.Flags().String("mode", string(decision.ModeSequential), "batch mode (read_only, sequential, optimistic)")
	cmd.Flags().Int("workers", 0, "parallel workers for read_only and optimistic modes")
	cmd.Flags().String("out", "", "write the batch result to this file instead of stdout")
	cmd.Flags().Bool("persist", false, "store alerts, decisions and the batch summary in the repository")
	_ = cmd.MarkFlagRequired("alerts")

	_ = v.BindPFlag("matching.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	alertsPath, _ := cmd.Flags().GetString("alerts")
	txnsPath, _ := cmd.Flags().GetString("transactions")
	modeFlag, _ := cmd.Flags().GetString("mode")
	outPath, _ := cmd.Flags().GetString("out")
	persist, _ := cmd.Flags().GetBool("persist")

	mode, err := decision.ParseBatchMode(modeFlag)
	if err != nil {
		return err
	}

	var alerts []*domain.Alert
	if err := readJSONFile(alertsPath, &alerts); err != nil {
		return fmt.Errorf("reading alerts: %w", err)
	}
	alerts = dropNull(alerts, "alert")

	var repo *repository.SQLRepository
	if persist || txnsPath == "" {
		repo, err = repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("failed to initialize repository: %w", err)
		}
		defer repo.Close()
	}

	// Pick the pool and, for claiming modes, the claim store.
	var txnPool domain.TransactionPool
	var store domain.ClaimStore
	if txnsPath != "" {
		var txns []*domain.Transaction
		if err := readJSONFile(txnsPath, &txns); err != nil {
			return fmt.Errorf("reading transactions: %w", err)
		}
		txns = dropNull(txns, "transaction")
		txnPool = pool.NewMemoryPool(txns...)
		if mode != decision.ModeReadOnly {
			store = claims.NewMemoryStore()
		}
	} else {
		txnPool = repo
		if mode != decision.ModeReadOnly {
			if store, err = openClaimStore(cfg.Claims, repo); err != nil {
				return err
			}
			defer closeClaimStore(store)
		}
	}

	engine, err := decision.New(cfg.Matching, txnPool)
	if err != nil {
		return err
	}

	slog.Info("matching batch",
		"alerts", len(alerts),
		"mode", mode,
		"pool", poolName(txnsPath),
	)

	result, runErr := engine.ProcessBatch(ctx, alerts, decision.BatchOptions{
		Mode:    mode,
		Workers: cfg.Matching.Workers,
		Claims:  store,
	})
	if result == nil {
		return runErr
	}

	if persist {
		if err := persistBatch(cmd, repo, alerts, result); err != nil {
			return err
		}
	}

	if err := writeResult(cmd.OutOrStdout(), outPath, result); err != nil {
		return err
	}
	return runErr
}

func persistBatch(cmd *cobra.Command, repo domain.Repository, alerts []*domain.Alert, result *domain.BatchResult) error {
	ctx := cmd.Context()
	for _, a := range alerts {
		if err := repo.SaveAlert(ctx, a); err != nil {
			slog.Warn("failed to save alert", "alert_id", a.ID, "error", err)
		}
	}
	for _, d := range result.Decisions {
		if err := repo.SaveDecision(ctx, domain.NewDecisionRecord(result.BatchID, d)); err != nil {
			return fmt.Errorf("saving decision for %s: %w", d.AlertID, err)
		}
	}
	return repo.SaveBatch(ctx, &domain.BatchRecord{
		ID:          result.BatchID,
		Mode:        result.Mode,
		Stats:       result.Stats,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	})
}

// openClaimStore builds the configured claim store. The "repository" type
// claims directly on the transactions table.
func openClaimStore(c domain.ClaimStoreConfig, repo domain.Repository) (domain.ClaimStore, error) {
	if c.Type == "repository" {
		if repo == nil {
			return nil, fmt.Errorf("%w: repository claim store needs a repository", domain.ErrConfiguration)
		}
		return repo, nil
	}
	store, err := claims.New(c)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize claim store: %w", err)
	}
	return store, nil
}

// closeClaimStore closes stores that hold connections of their own.
func closeClaimStore(store domain.ClaimStore) {
	if _, ok := store.(domain.Repository); ok {
		return
	}
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close claim store", "error", err)
		}
	}
}

func writeResult(stdout io.Writer, path string, result *domain.BatchResult) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, path, err)
	}
	return nil
}

// dropNull removes null array elements, logging the index of each.
func dropNull[T any](items []*T, kind string) []*T {
	kept := items[:0]
	for i, item := range items {
		if item == nil {
			slog.Warn("skipping null record", "kind", kind, "index", i)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func poolName(txnsPath string) string {
	if txnsPath != "" {
		return "file"
	}
	return "repository"
}
