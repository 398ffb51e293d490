package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("publications: %d\n", stats.Total)
		fmt.Printf("enriched:     %d\n", stats.Enriched)
		fmt.Printf("analyzed:     %d\n", stats.Analyzed)
		if stats.AvgScore != nil {
			fmt.Printf("avg score:    %.4f\n", *stats.AvgScore)
		} else {
			fmt.Println("avg score:    n/a")
		}
		fmt.Printf("score >= 0.7: %d\n", stats.HighScoreCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
