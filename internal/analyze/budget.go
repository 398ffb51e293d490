package analyze

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oeaw/storyscout/internal/events"
	"github.com/oeaw/storyscout/pkg/openrouter"
)

// budgetTimeout bounds the preflight; a slow budget check must not stall
// the run start.
const budgetTimeout = 10 * time.Second

// CheckBudget queries the key limit and the account credit balance
// concurrently and derives the effective budget: the minimum when both are
// known, else whichever is known. An unreachable budget API yields an
// unconstrained snapshot rather than an error, since a missing signal must
// not block scoring.
func CheckBudget(ctx context.Context, client openrouter.Client) *events.BudgetSnapshot {
	ctx, cancel := context.WithTimeout(ctx, budgetTimeout)
	defer cancel()

	var (
		key     *openrouter.KeyInfo
		credits *openrouter.Credits
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		key, err = client.Key(ctx)
		return err
	})
	g.Go(func() error {
		// Credit balance is best-effort; some keys cannot read it.
		c, err := client.Credits(ctx)
		if err != nil {
			zap.L().Debug("credits endpoint unavailable", zap.Error(err))
			return nil
		}
		credits = c
		return nil
	})

	snapshot := &events.BudgetSnapshot{}
	if err := g.Wait(); err != nil {
		zap.L().Warn("budget preflight failed, treating as unconstrained", zap.Error(err))
		return snapshot
	}

	if key != nil {
		snapshot.LimitRemaining = key.LimitRemaining
		snapshot.Usage = key.Usage
		snapshot.Limit = key.Limit
	}
	if credits != nil {
		balance := credits.Balance()
		snapshot.AccountBalance = &balance
	}

	switch {
	case snapshot.LimitRemaining != nil && snapshot.AccountBalance != nil:
		eff := min(*snapshot.LimitRemaining, *snapshot.AccountBalance)
		snapshot.EffectiveBudget = &eff
	case snapshot.AccountBalance != nil:
		eff := *snapshot.AccountBalance
		snapshot.EffectiveBudget = &eff
	case snapshot.LimitRemaining != nil:
		eff := *snapshot.LimitRemaining
		snapshot.EffectiveBudget = &eff
	}
	return snapshot
}
