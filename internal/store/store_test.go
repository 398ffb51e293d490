package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrichmentFilterStatuses(t *testing.T) {
	assert.Equal(t, []string{"pending"}, EnrichmentFilter{}.Statuses())
	assert.Equal(t, []string{"pending", "partial"}, EnrichmentFilter{IncludePartial: true}.Statuses())
}

func TestAnalysisFilterEnrichmentStatuses(t *testing.T) {
	assert.Nil(t, AnalysisFilter{}.EnrichmentStatuses())
	assert.Nil(t, AnalysisFilter{IncludePartial: true}.EnrichmentStatuses())
	assert.Equal(t, []string{"enriched"}, AnalysisFilter{EnrichedOnly: true}.EnrichmentStatuses())
	assert.Equal(t, []string{"enriched", "partial"},
		AnalysisFilter{EnrichedOnly: true, IncludePartial: true}.EnrichmentStatuses())
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		max   int
		want  int
	}{
		{"zero uses default", 0, 500, 20},
		{"negative uses default", -5, 500, 20},
		{"within ceiling", 40, 500, 40},
		{"above ceiling", 1000, 500, 500},
		{"no ceiling", 1000, 0, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.limit, tt.max))
		})
	}
}
