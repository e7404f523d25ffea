package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Sasuke-inu/immi-case/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "immi",
	Short: "Case-field enrichment pipeline",
	Long:  "Populates missing structured fields on tribunal case records: deterministic text heuristics first, the annotation service for whatever remains, reconciled back into the canonical dataset.",
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
