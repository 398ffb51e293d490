package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oeaw/storyscout/internal/analyze"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/store"
	"github.com/oeaw/storyscout/pkg/openrouter"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score publications for press-release potential",
	Long: `Sends eligible publications to the configured LLM in small sub-batches and
stores a weighted press score plus pitch material per record. The run checks
the OpenRouter budget first and aborts before spending when the remaining
credit cannot cover a minimal call.

Examples:
  # Score up to 20 pending publications
  storyscout analyze

  # Re-score everything with enough text, regardless of status
  storyscout analyze --limit 100 --force

  # Restrict to successfully enriched records and try a cheaper model
  storyscout analyze --enriched-only --model deepseek/deepseek-chat`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("analyze"); err != nil {
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

		limit, _ := cmd.Flags().GetInt("limit")
		force, _ := cmd.Flags().GetBool("force")
		enrichedOnly, _ := cmd.Flags().GetBool("enriched-only")
		includePartial, _ := cmd.Flags().GetBool("include-partial")
		model, _ := cmd.Flags().GetString("model")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if limit > cfg.Analysis.MaxLimit {
			return eris.Errorf("analyze: --limit must be at most %d (got %d)", cfg.Analysis.MaxLimit, limit)
		}
		if batchSize != 0 && (batchSize < 1 || batchSize > 5) {
			return eris.Errorf("analyze: --batch-size must be between 1 and 5 (got %d)", batchSize)
		}
		if model == "" {
			model = cfg.OpenRouter.Model
		}
		analysisCfg := cfg.Analysis
		if batchSize != 0 {
			analysisCfg.SubBatchSize = batchSize
		}

		pubs, err := st.ListForAnalysis(ctx, store.AnalysisFilter{
			Limit:          limit,
			MinWordCount:   cfg.Analysis.MinWordCount,
			ForceReanalyze: force,
			EnrichedOnly:   enrichedOnly,
			IncludePartial: includePartial,
		})
		if err != nil {
			return err
		}
		if len(pubs) == 0 {
			fmt.Println("no eligible publications to analyze")
			return nil
		}

		client := openrouter.NewClient(cfg.OpenRouter.Key,
			openrouter.WithBaseURL(cfg.OpenRouter.BaseURL),
			openrouter.WithModel(model),
			openrouter.WithReferer("https://github.com/oeaw/storyscout", "StoryScout"),
		)
		scorer := analyze.NewScorer(client, st, cfg.OpenRouter.Key, model,
			analysisCfg, analyze.NewPricing(cfg.Pricing))

		zap.L().Info("starting analysis run",
			zap.Int("publications", len(pubs)),
			zap.String("model", model),
		)

		stream := events.NewStream()
		go scorer.Run(ctx, pubs, stream)
		printEvents(os.Stdout, stream)

		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.Int("limit", 20, "maximum number of publications to score")
	f.Bool("force", false, "re-score already analyzed records")
	f.Bool("enriched-only", false, "only score successfully enriched records")
	f.Bool("include-partial", false, "with --enriched-only, admit partially enriched records too")
	f.String("model", "", "OpenRouter model (default from config)")
	f.Int("batch-size", 0, "publications per model call, 1 to 5 (default from config)")
	rootCmd.AddCommand(analyzeCmd)
}
