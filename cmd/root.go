package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oeaw/storyscout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "storyscout",
	Short: "Press-worthiness pipeline for research publications",
	Long:  "Enriches imported publication records with metadata from CrossRef, OpenAlex, Unpaywall, Semantic Scholar, and PDF full text, then scores them for press-release potential with an LLM.",
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
