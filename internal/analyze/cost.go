package analyze

import "github.com/oeaw/storyscout/internal/config"

// Pricing estimates spend from token counts using the per-model rate
// table, with a conservative default for unknown models.
type Pricing struct {
	cfg config.PricingConfig
}

// NewPricing creates a Pricing from the configured rate table.
func NewPricing(cfg config.PricingConfig) Pricing {
	return Pricing{cfg: cfg}
}

// EstimateCost returns the USD cost of tokens under the given model.
func (p Pricing) EstimateCost(tokens int, model string) float64 {
	rate, ok := p.cfg.PerMTok[model]
	if !ok {
		rate = p.cfg.DefaultPerMTok
	}
	return float64(tokens) / 1e6 * rate
}
