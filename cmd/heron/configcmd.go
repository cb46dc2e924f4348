package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/heron/internal/config"
	"github.com/opensource-finance/heron/internal/domain"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	initCmd.Flags().Bool("cluster", false, "write the PostgreSQL, Redis and NATS profile")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Matching.Validate(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultFileName
	if len(args) == 1 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")
	cluster, _ := cmd.Flags().GetBool("cluster")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	starter := domain.DefaultConfig()
	if cluster {
		starter = domain.ClusterConfig()
	}
	if err := config.Save(path, starter); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
