// Benchmark tool for measuring Heron's matching accuracy.
//
// Usage:
//
//	go run ./cmd/benchmark --fixture testdata/labelled.json
//	go run ./cmd/benchmark --synthetic 5000 --noise 0.3
//
// This tool:
//  1. Reads a labelled fixture (or generates one)
//  2. Runs the alerts through the engine in input order
//  3. Compares each auto_matched transaction with the expected one
//  4. Calculates precision, recall, F1 and the status confusion counts
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/heron/internal/claims"
	"github.com/opensource-finance/heron/internal/config"
	"github.com/opensource-finance/heron/internal/decision"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/pool"
)

// LabelledAlert is an alert with the transaction it should match.
// An empty ExpectedTransactionID means the alert has no counterpart.
type LabelledAlert struct {
	domain.Alert
	ExpectedTransactionID string `json:"expectedTransactionId,omitempty"`
}

// Fixture is the benchmark input file.
type Fixture struct {
	Alerts       []*LabelledAlert      `json:"alerts"`
	Transactions []*domain.Transaction `json:"transactions"`
}

func main() {
	cmd := &cobra.Command{
		Use:          "benchmark",
		Short:        "Measure matching accuracy against labelled data",
		SilenceUsage: true,
		RunE:         run,
	}

	cmd.Flags().String("fixture", "", "labelled fixture JSON file")
	cmd.Flags().Int("synthetic", 0, "generate this many labelled alerts instead of reading a fixture")
	cmd.Flags().Float64("noise", 0.2, "share of synthetic alerts with perturbed fields (0.0-1.0)")
	cmd.Flags().Int64("seed", 1, "random seed for synthetic data")
	cmd.Flags().String("config", "", "heron config file for matching options")
	cmd.Flags().String("mode", string(decision.ModeSequential), "batch mode (read_only, sequential, optimistic)")
	cmd.Flags().Int("workers", 0, "parallel workers for read_only and optimistic modes")
	cmd.Flags().Bool("verbose", false, "print each alert result")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	fixturePath, _ := cmd.Flags().GetString("fixture")
	synthetic, _ := cmd.Flags().GetInt("synthetic")
	noise, _ := cmd.Flags().GetFloat64("noise")
	seed, _ := cmd.Flags().GetInt64("seed")
	cfgPath, _ := cmd.Flags().GetString("config")
	modeFlag, _ := cmd.Flags().GetString("mode")
	workers, _ := cmd.Flags().GetInt("workers")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if fixturePath == "" && synthetic <= 0 {
		return fmt.Errorf("one of --fixture or --synthetic is required")
	}

	// Keep the report readable; only warnings from the engine.
	if err := config.SetupLogger("warn", "console"); err != nil {
		return err
	}

	cfg, err := config.Load(nil, cfgPath)
	if err != nil {
		return err
	}
	mode, err := decision.ParseBatchMode(modeFlag)
	if err != nil {
		return err
	}

	var fx *Fixture
	if synthetic > 0 {
		fx = Generate(synthetic, noise, seed)
	} else {
		fx, err = readFixture(fixturePath)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║            HERON BENCHMARK - Matching Accuracy                ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════════╝")
	if fixturePath != "" {
		fmt.Fprintf(out, "\nFixture:      %s\n", fixturePath)
	} else {
		fmt.Fprintf(out, "\nSynthetic:    %d alerts (noise %.2f, seed %d)\n", synthetic, noise, seed)
	}
	fmt.Fprintf(out, "Alerts:       %d\n", len(fx.Alerts))
	fmt.Fprintf(out, "Transactions: %d\n", len(fx.Transactions))
	fmt.Fprintf(out, "Mode:         %s\n", mode)
	fmt.Fprintln(out)

	engine, err := decision.New(cfg.Matching, pool.NewMemoryPool(fx.Transactions...))
	if err != nil {
		return err
	}

	alerts := make([]*domain.Alert, len(fx.Alerts))
	for i, la := range fx.Alerts {
		alerts[i] = &la.Alert
	}

	start := time.Now()
	decisions, err := runChunks(cmd, engine, alerts, mode, workers)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	metrics := Evaluate(fx.Alerts, decisions)
	if verbose {
		printDecisions(out, fx.Alerts, decisions)
	}
	printResults(out, metrics, duration)
	return nil
}

// chunkSize is the number of alerts per ProcessBatch call; the progress
// bar advances once per chunk.
const chunkSize = 100

// runChunks runs the alerts in input order, chunk by chunk, sharing one
// claim store so the result matches a single batch.
func runChunks(cmd *cobra.Command, engine *decision.Engine, alerts []*domain.Alert, mode decision.BatchMode, workers int) ([]*domain.MatchDecision, error) {
	var store domain.ClaimStore
	if mode != decision.ModeReadOnly {
		store = claims.NewMemoryStore()
	}

	bar := progressbar.NewOptions(len(alerts),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Matching alerts..."),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	decisions := make([]*domain.MatchDecision, 0, len(alerts))
	for lo := 0; lo < len(alerts); lo += chunkSize {
		hi := min(lo+chunkSize, len(alerts))
		result, err := engine.ProcessBatch(cmd.Context(), alerts[lo:hi], decision.BatchOptions{
			Mode:    mode,
			Workers: workers,
			Claims:  store,
		})
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, result.Decisions...)
		if err := bar.Add(hi - lo); err != nil {
			slog.Warn("failed to update progress bar", "error", err)
		}
	}
	return decisions, nil
}

func readFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%w: fixture %s: %v", domain.ErrInvalidInput, path, err)
	}
	return &fx, nil
}
