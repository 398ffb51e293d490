package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oeaw/storyscout/internal/config"
	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/internal/model"
	"github.com/oeaw/storyscout/pkg/openrouter"
)

// maskedKeyChars is how much of the API key the init event reveals.
const maskedKeyChars = 12

// maxBatchAttempts bounds the adaptive max_tokens retry on credit
// shortfalls.
const maxBatchAttempts = 3

// Updater persists per-record scoring results.
type Updater interface {
	UpdateAnalysis(ctx context.Context, id string, u model.AnalysisUpdate) error
}

// Scorer runs LLM press-worthiness scoring over publications in small
// sequential sub-batches.
type Scorer struct {
	client  openrouter.Client
	store   Updater
	model   string
	keyHint string
	cfg     config.AnalysisConfig
	pricing Pricing
	limiter *rate.Limiter
}

// NewScorer assembles a scorer. apiKey is only used for the masked
// credential hint; the client already carries it.
func NewScorer(client openrouter.Client, store Updater, apiKey, model string, cfg config.AnalysisConfig, pricing Pricing) *Scorer {
	perSec := cfg.SubBatchesPerSec
	if perSec <= 0 {
		perSec = 1
	}
	return &Scorer{
		client:  client,
		store:   store,
		model:   model,
		keyHint: maskKey(apiKey),
		cfg:     cfg,
		pricing: pricing,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

// batchResult is the outcome of one sub-batch model call.
type batchResult struct {
	evaluations []Evaluation
	tokensUsed  int
	cost        float64
}

// Run scores pubs, emitting init/progress/error/complete events and
// persisting each record. The stream is closed when the run ends.
func (s *Scorer) Run(ctx context.Context, pubs []model.Publication, stream *events.Stream) {
	defer stream.Close()

	budget := CheckBudget(ctx, s.client)
	stream.Send(events.TypeInit, events.InitPayload{
		RunID:          uuid.New().String(),
		Total:          len(pubs),
		Model:          s.model,
		CredentialHint: s.keyHint,
		Budget:         budget,
	})

	// Fail fast before any token is spent when the budget cannot cover
	// even a minimal call.
	epsilon := s.cfg.BudgetEpsilonUSD
	if budget.EffectiveBudget != nil && *budget.EffectiveBudget < epsilon {
		stream.Send(events.TypeError, events.ErrorPayload{
			Message: budgetShortfallMessage(budget, epsilon),
			Fatal:   true,
		})
		zeroTokens := 0
		zeroCost := 0.0
		stream.Send(events.TypeComplete, events.CompletePayload{
			Processed:  0,
			Total:      len(pubs),
			Failed:     len(pubs),
			TokensUsed: &zeroTokens,
			Cost:       &zeroCost,
		})
		return
	}

	batchSize := s.cfg.SubBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	var processed, successful, totalTokens int
	var totalCost float64

	for i := 0; i < len(pubs); i += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(i+batchSize, len(pubs))
		batch := pubs[i:end]

		stream.Send(events.TypeProgress, events.ProgressPayload{
			Processed:    processed,
			Total:        len(pubs),
			CurrentTitle: batch[0].Title,
			TokensUsed:   totalTokens,
			Cost:         totalCost,
		})

		res, err := s.scoreBatch(ctx, batch)
		if err != nil {
			batchStart := i
			stream.Send(events.TypeError, events.ErrorPayload{
				Message:    err.Error(),
				Fatal:      IsFatal(err),
				BatchStart: &batchStart,
			})
			s.markFailed(ctx, batch)
			processed += len(batch)
			if IsFatal(err) {
				break
			}
		} else {
			totalTokens += res.tokensUsed
			totalCost += res.cost
			successful += s.persistBatch(ctx, batch, res, stream)
			processed += len(batch)
		}

		if end < len(pubs) {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}
	}

	stream.Send(events.TypeComplete, events.CompletePayload{
		Processed:  processed,
		Total:      len(pubs),
		Successful: successful,
		Failed:     processed - successful,
		TokensUsed: &totalTokens,
		Cost:       &totalCost,
	})
}

// scoreBatch issues one model call for a sub-batch, shrinking max_tokens
// and retrying when OpenRouter reports it can only afford a smaller
// completion.
func (s *Scorer) scoreBatch(ctx context.Context, batch []model.Publication) (*batchResult, error) {
	prompt := BuildEvaluationPrompt(batch)
	maxTokens := s.cfg.TokensPerRecord * len(batch)
	timeout := time.Duration(s.cfg.ModelTimeoutSecs) * time.Second

	var lastBody string
	for attempt := 0; attempt < maxBatchAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := s.chat(callCtx, prompt, maxTokens)
		cancel()

		if err != nil {
			var credit *openrouter.InsufficientCreditsError
			if errors.As(err, &credit) && !credit.PromptTooLarge &&
				credit.AffordableTokens > s.cfg.RetryTokenFloor {
				maxTokens = credit.AffordableTokens - s.cfg.RetryTokenMargin
				lastBody = credit.Body
				zap.L().Warn("credit shortfall, retrying with smaller completion budget",
					zap.Int("attempt", attempt+1),
					zap.Int("max_tokens", maxTokens),
				)
				continue
			}
			return nil, err
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return nil, eris.New("analyze: no content in model response")
		}

		evaluations, err := ParseEvaluations(resp.Choices[0].Message.Content)
		if err != nil {
			return nil, err
		}

		tokens := resp.Usage.TotalTokens
		return &batchResult{
			evaluations: evaluations,
			tokensUsed:  tokens,
			cost:        s.pricing.EstimateCost(tokens, s.model),
		}, nil
	}

	return nil, &openrouter.InsufficientCreditsError{
		Body: fmt.Sprintf("still unaffordable after %d attempts: %s", maxBatchAttempts, lastBody),
	}
}

func (s *Scorer) chat(ctx context.Context, prompt string, maxTokens int) (*openrouter.ChatCompletionResponse, error) {
	temperature := s.cfg.Temperature
	return s.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: s.model,
		Messages: []openrouter.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
		ResponseFormat: &openrouter.ResponseFormat{Type: "json_object"},
	})
}

// persistBatch writes evaluations back, pairing them with publications by
// position. Returns the number of records stored.
func (s *Scorer) persistBatch(ctx context.Context, batch []model.Publication, res *batchResult, stream *events.Stream) int {
	n := min(len(res.evaluations), len(batch))
	costShare := 0.0
	if len(res.evaluations) > 0 {
		costShare = res.cost / float64(len(res.evaluations))
	}

	stored := 0
	for j := 0; j < n; j++ {
		eval := res.evaluations[j]
		dims := eval.DimensionScores.Clamp()

		u := model.AnalysisUpdate{
			Status:                model.AnalysisAnalyzed,
			PressScore:            model.PressScore(dims),
			PublicAccessibility:   dims.PublicAccessibility,
			SocietalRelevance:     dims.SocietalRelevance,
			NoveltyFactor:         dims.NoveltyFactor,
			StorytellingPotential: dims.StorytellingPotential,
			MediaTimeliness:       dims.MediaTimeliness,
			PitchSuggestion:       eval.PitchSuggestion,
			TargetAudience:        eval.TargetAudience,
			SuggestedAngle:        eval.SuggestedAngle,
			Reasoning:             eval.Reasoning,
			LLMModel:              s.model,
			AnalysisCost:          costShare,
		}
		if err := s.store.UpdateAnalysis(ctx, batch[j].ID, u); err != nil {
			zap.L().Error("persist analysis failed",
				zap.String("publication_id", batch[j].ID),
				zap.Error(err),
			)
			stream.Send(events.TypeError, events.ErrorPayload{
				Message: "failed to save score for \"" + batch[j].Title + "\": " + err.Error(),
			})
			continue
		}
		stored++
	}
	return stored
}

func (s *Scorer) markFailed(ctx context.Context, batch []model.Publication) {
	for _, pub := range batch {
		err := s.store.UpdateAnalysis(ctx, pub.ID, model.AnalysisUpdate{Status: model.AnalysisFailed})
		if err != nil {
			zap.L().Error("mark analysis failed",
				zap.String("publication_id", pub.ID),
				zap.Error(err),
			)
		}
	}
}

// IsFatal reports whether an error should halt the whole run: credit
// exhaustion that retries cannot fix, or an authentication failure.
func IsFatal(err error) bool {
	var credit *openrouter.InsufficientCreditsError
	if errors.As(err, &credit) {
		return true
	}
	var api *openrouter.APIError
	if errors.As(err, &api) {
		return api.StatusCode == 401 || api.StatusCode == 403
	}
	return false
}

// maskKey hides the credential in progress output. Keys too short to
// truncate safely are redacted outright.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= maskedKeyChars {
		return "..."
	}
	return key[:maskedKeyChars] + "..."
}

func budgetShortfallMessage(b *events.BudgetSnapshot, epsilon float64) string {
	msg := fmt.Sprintf("insufficient budget: effective budget $%.4f is below the $%.2f minimum",
		*b.EffectiveBudget, epsilon)
	if b.LimitRemaining != nil {
		msg += fmt.Sprintf(" (key limit remaining $%.4f)", *b.LimitRemaining)
	}
	if b.AccountBalance != nil {
		msg += fmt.Sprintf(" (account balance $%.4f)", *b.AccountBalance)
	}
	return msg
}
