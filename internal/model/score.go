package model

import "math"

// Dimension weights for the composite press score. They sum to 1.0.
const (
	WeightPublicAccessibility   = 0.20
	WeightSocietalRelevance     = 0.25
	WeightNoveltyFactor         = 0.20
	WeightStorytellingPotential = 0.20
	WeightMediaTimeliness       = 0.15
)

// DimensionScores holds the five press-worthiness dimensions, each in [0,1].
type DimensionScores struct {
	PublicAccessibility   float64 `json:"public_accessibility"`
	SocietalRelevance     float64 `json:"societal_relevance"`
	NoveltyFactor         float64 `json:"novelty_factor"`
	StorytellingPotential float64 `json:"storytelling_potential"`
	MediaTimeliness       float64 `json:"media_timeliness"`
}

// Clamp forces every dimension into [0,1]. The scoring model is asked for
// values in range but nothing server-side enforces it.
func (d DimensionScores) Clamp() DimensionScores {
	return DimensionScores{
		PublicAccessibility:   clamp01(d.PublicAccessibility),
		SocietalRelevance:     clamp01(d.SocietalRelevance),
		NoveltyFactor:         clamp01(d.NoveltyFactor),
		StorytellingPotential: clamp01(d.StorytellingPotential),
		MediaTimeliness:       clamp01(d.MediaTimeliness),
	}
}

// PressScore computes the weighted composite score, rounded to 4 decimals.
// Inputs are clamped first, so the result is always in [0,1].
func PressScore(d DimensionScores) float64 {
	c := d.Clamp()
	score := c.PublicAccessibility*WeightPublicAccessibility +
		c.SocietalRelevance*WeightSocietalRelevance +
		c.NoveltyFactor*WeightNoveltyFactor +
		c.StorytellingPotential*WeightStorytellingPotential +
		c.MediaTimeliness*WeightMediaTimeliness
	return math.Round(score*10000) / 10000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
