package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oeaw/storyscout/internal/enrich"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/ocr"
	"github.com/oeaw/storyscout/internal/store"
	"github.com/oeaw/storyscout/pkg/crossref"
	"github.com/oeaw/storyscout/pkg/openalex"
	"github.com/oeaw/storyscout/pkg/semanticscholar"
	"github.com/oeaw/storyscout/pkg/unpaywall"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich pending publications with metadata and abstracts",
	Long: `Runs the metadata cascade over eligible publications: CrossRef, OpenAlex,
and Unpaywall first, then PDF full-text extraction when no abstract was found,
then Semantic Scholar. Results are merged by source precedence and written
back per record.

Examples:
  # Enrich up to 20 pending publications
  storyscout enrich

  # Retry partially enriched records too
  storyscout enrich --limit 100 --include-partial

  # Include records without a DOI (PDF or CSV abstract only)
  storyscout enrich --include-no-doi`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		limit, _ := cmd.Flags().GetInt("limit")
		includePartial, _ := cmd.Flags().GetBool("include-partial")
		includeNoDOI, _ := cmd.Flags().GetBool("include-no-doi")
		if limit > cfg.Enrich.MaxLimit {
			return eris.Errorf("enrich: --limit must be at most %d (got %d)", cfg.Enrich.MaxLimit, limit)
		}

		pubs, err := st.ListForEnrichment(ctx, store.EnrichmentFilter{
			Limit:          limit,
			IncludePartial: includePartial,
			IncludeNoDOI:   includeNoDOI,
		})
		if err != nil {
			return err
		}
		if len(pubs) == 0 {
			fmt.Println("no eligible publications to enrich")
			return nil
		}

		cascade, err := buildCascade(st)
		if err != nil {
			return err
		}

		zap.L().Info("starting enrichment run", zap.Int("publications", len(pubs)))

		stream := events.NewStream()
		go cascade.Run(ctx, pubs, stream)
		printEvents(os.Stdout, stream)

		return nil
	},
}

// buildCascade wires the metadata sources, the PDF extractor, and the store
// into an enrichment cascade.
func buildCascade(st store.Store) (*enrich.Cascade, error) {
	ua := cfg.Enrich.UserAgent

	pre := []enrich.Source{
		enrich.NewCrossRefSource(crossref.NewClient(crossref.WithUserAgent(ua))),
		enrich.NewOpenAlexSource(openalex.NewClient(openalex.WithUserAgent(ua))),
		enrich.NewUnpaywallSource(unpaywall.NewClient(cfg.Enrich.ContactEmail)),
	}
	post := []enrich.Source{
		enrich.NewSemanticScholarSource(semanticscholar.NewClient(semanticscholar.WithUserAgent(ua))),
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, err
	}
	pdf := enrich.NewPDFExtractor(extractor, cfg.PDF, ua)

	return enrich.NewCascade(cfg.Enrich, pre, post, pdf, st), nil
}

func init() {
	f := enrichCmd.Flags()
	f.Int("limit", 20, "maximum number of publications to enrich")
	f.Bool("include-partial", false, "retry partially enriched records")
	f.Bool("include-no-doi", false, "include records without a DOI")
	rootCmd.AddCommand(enrichCmd)
}
