package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/heron/internal/domain"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestMatchAndConfigCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	alert := domain.NewAlert("alert-1", decimal.NewFromInt(50000), "NGN", at, "GTB/CR/2025/001")
	alert.AccountLast4 = "1234"
	alert.BankCode = "GTB"
	alert.EnrichmentConfidence = 1.0

	txn := domain.NewTransaction("txn-1", decimal.NewFromInt(50000), "NGN", at.Add(time.Minute), "GTB/CR/2025/001")
	txn.AccountLast4 = "1234"
	txn.BankCode = "GTB"

	alertsPath := filepath.Join(dir, "alerts.json")
	txnsPath := filepath.Join(dir, "txns.json")
	outPath := filepath.Join(dir, "out.json")
	writeJSON(t, alertsPath, []*domain.Alert{alert})
	writeJSON(t, txnsPath, []*domain.Transaction{txn})

	t.Run("Match", func(t *testing.T) {
		rootCmd.SetArgs([]string{
			"match",
			"--alerts", alertsPath,
			"--transactions", txnsPath,
			"--mode", "sequential",
			"--out", outPath,
			"--log-level", "error",
		})
		require.NoError(t, rootCmd.Execute())

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)

		var result domain.BatchResult
		require.NoError(t, json.Unmarshal(data, &result))
		require.Len(t, result.Decisions, 1)
		assert.Equal(t, domain.StatusAutoMatched, result.Decisions[0].Status)
		assert.Equal(t, "txn-1", result.Decisions[0].TransactionID())
		assert.Equal(t, 1, result.Stats.AutoMatched)
	})

	t.Run("ConfigInit", func(t *testing.T) {
		path := filepath.Join(dir, "heron.yaml")
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		defer rootCmd.SetOut(nil)

		rootCmd.SetArgs([]string{"config", "init", path, "--log-level", "error"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, out.String(), path)
		assert.FileExists(t, path)

		// A second init without --force refuses to overwrite.
		rootCmd.SetArgs([]string{"config", "init", path, "--log-level", "error"})
		assert.Error(t, rootCmd.Execute())
	})
}

func TestNullRecordsAreSkipped(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Setenv("HERON_REPOSITORY_DRIVER", "sqlite")
	t.Setenv("HERON_REPOSITORY_SQLITE_PATH", filepath.Join(dir, "heron.db"))

	at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	alert := domain.NewAlert("alert-1", decimal.NewFromInt(50000), "NGN", at, "GTB/CR/2025/001")
	alert.EnrichmentConfidence = 1.0
	txn := domain.NewTransaction("txn-1", decimal.NewFromInt(50000), "NGN", at.Add(time.Minute), "GTB/CR/2025/001")

	alertsPath := filepath.Join(dir, "alerts.json")
	txnsPath := filepath.Join(dir, "txns.json")
	outPath := filepath.Join(dir, "out.json")
	writeJSON(t, alertsPath, []*domain.Alert{nil, alert})
	writeJSON(t, txnsPath, []*domain.Transaction{txn, nil})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"import", "--transactions", txnsPath, "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Imported 1 transactions")

	rootCmd.SetArgs([]string{
		"match",
		"--alerts", alertsPath,
		"--transactions", txnsPath,
		"--mode", "sequential",
		"--out", outPath,
		"--persist",
		"--log-level", "error",
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Decisions, 1)
	assert.Equal(t, "alert-1", result.Decisions[0].AlertID)
	assert.Zero(t, result.Stats.Errors)
}
