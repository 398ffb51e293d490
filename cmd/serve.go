package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oeaw/storyscout/internal/analyze"
	"github.com/oeaw/storyscout/internal/enrich"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/export"
	"github.com/oeaw/storyscout/internal/store"
	"github.com/oeaw/storyscout/pkg/openrouter"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serves the pipeline over HTTP. Batch runs stream their progress as
Server-Sent Events; closing the connection cancels the run.

  POST /api/enrichment/batch   run the metadata cascade
  POST /api/analysis/batch     run LLM scoring
  GET  /api/export/{format}    download scored records (csv, json, xlsx)
  GET  /api/publications/stats pipeline counters
  GET  /health`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
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

		cascade, err := buildCascade(st)
		if err != nil {
			return err
		}

		api := &apiServer{store: st, cascade: cascade}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

type apiServer struct {
	store   store.Store
	cascade *enrich.Cascade
}

func (a *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/enrichment/batch", a.handleEnrichmentBatch)
	r.Post("/api/analysis/batch", a.handleAnalysisBatch)
	r.Get("/api/export/{format}", a.handleExport)
	r.Get("/api/publications/stats", a.handleStats)

	return r
}

func (a *apiServer) handleEnrichmentBatch(w http.ResponseWriter, r *http.Request) {
	var filter store.EnrichmentFilter
	if err := decodeBody(r, &filter); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if filter.Limit > cfg.Enrich.MaxLimit {
		filter.Limit = cfg.Enrich.MaxLimit
	}

	pubs, err := a.store.ListForEnrichment(r.Context(), filter)
	if err != nil {
		zap.L().Error("list for enrichment failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list publications"})
		return
	}
	if len(pubs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No publications to enrich", "count": 0})
		return
	}

	stream := events.NewStream()
	go a.cascade.Run(r.Context(), pubs, stream)
	if err := events.ServeSSE(r.Context(), w, stream); err != nil {
		zap.L().Debug("enrichment stream ended early", zap.Error(err))
	}
}

// analysisRequest is the analysis batch body: the eligibility filter plus
// optional per-run model and sub-batch overrides.
type analysisRequest struct {
	store.AnalysisFilter
	Model        string `json:"model,omitempty"`
	SubBatchSize int    `json:"sub_batch_size,omitempty"`
}

// maxSubBatchSize caps how many publications share one model call.
const maxSubBatchSize = 5

// resolveSubBatchSize applies a caller-supplied sub-batch size, falling
// back to the configured default and capping at the per-call maximum.
func resolveSubBatchSize(requested, fallback int) int {
	if requested < 1 {
		return fallback
	}
	if requested > maxSubBatchSize {
		return maxSubBatchSize
	}
	return requested
}

func (a *apiServer) handleAnalysisBatch(w http.ResponseWriter, r *http.Request) {
	if cfg.OpenRouter.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "openrouter.key is not configured"})
		return
	}

	var req analysisRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Limit > cfg.Analysis.MaxLimit {
		req.Limit = cfg.Analysis.MaxLimit
	}
	if req.MinWordCount == 0 {
		req.MinWordCount = cfg.Analysis.MinWordCount
	}
	model := req.Model
	if model == "" {
		model = cfg.OpenRouter.Model
	}
	analysisCfg := cfg.Analysis
	analysisCfg.SubBatchSize = resolveSubBatchSize(req.SubBatchSize, cfg.Analysis.SubBatchSize)

	pubs, err := a.store.ListForAnalysis(r.Context(), req.AnalysisFilter)
	if err != nil {
		zap.L().Error("list for analysis failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list publications"})
		return
	}
	if len(pubs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No publications to analyze", "count": 0})
		return
	}

	client := openrouter.NewClient(cfg.OpenRouter.Key,
		openrouter.WithBaseURL(cfg.OpenRouter.BaseURL),
		openrouter.WithModel(model),
		openrouter.WithReferer("https://github.com/oeaw/storyscout", "StoryScout"),
	)
	scorer := analyze.NewScorer(client, a.store, cfg.OpenRouter.Key, model,
		analysisCfg, analyze.NewPricing(cfg.Pricing))

	stream := events.NewStream()
	go scorer.Run(r.Context(), pubs, stream)
	if err := events.ServeSSE(r.Context(), w, stream); err != nil {
		zap.L().Debug("analysis stream ended early", zap.Error(err))
	}
}

func (a *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if export.ContentType(format) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be csv, json, or xlsx"})
		return
	}

	pubs, err := a.store.ListScored(r.Context())
	if err != nil {
		zap.L().Error("list scored failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list publications"})
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(format, time.Now())))
	if err := export.Write(w, format, pubs); err != nil {
		zap.L().Error("export failed", zap.String("format", format), zap.Error(err))
	}
}

func (a *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		zap.L().Error("stats query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeBody parses an optional JSON body; an empty body leaves v zeroed.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
