package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/repository"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load transactions into the repository",
		Long: `Load a JSON array of transactions into the configured repository so
they can be matched by "heron match" without --transactions or by
"heron worker". Existing transactions are updated; their claims are kept.`,
		RunE: runImport,
	}

	cmd.Flags().String("transactions", "", "JSON file with an array of transactions (required)")
	_ = cmd.MarkFlagRequired("transactions")

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("transactions")

	var txns []*domain.Transaction
	if err := readJSONFile(path, &txns); err != nil {
		return fmt.Errorf("reading transactions: %w", err)
	}
	txns = dropNull(txns, "transaction")

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	imported := 0
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := repo.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("saving transaction %s: %w", txn.ID, err)
		}
		imported++
	}

	slog.Info("transactions imported",
		"count", imported,
		"driver", cfg.Repository.Driver,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d transactions\n", imported)
	return nil
}
