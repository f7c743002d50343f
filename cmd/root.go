package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/betagouv/quotecheck/internal/config"
)

var cfg *config.Config

// version is injected at build time via -ldflags "-X main.version=...".
// Every finished quote check is tagged with it.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "quotecheck",
	Short: "Extraction and validation pipeline for renovation quotes",
	Long:  "Reads a renovation quote (devis), extracts its attributes through offline and LLM strategies, and validates them against what the submitter declared.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
