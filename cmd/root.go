package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadmap",
	Short: "Map-driven business lead generator",
	Long:  "Searches a drawn map area for businesses, classifies their websites, deduplicates them into leads, and exports CSV/XLSX or hands them to Notion or Salesforce. Searches are metered by credits.",
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
