// Package pricing fills in cost for feed records that report token counts
// and a model but no cost.
package pricing

import (
	"strings"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// ModelPricing holds USD prices per million tokens.
type ModelPricing struct {
	InputPrice      float64 `json:"input_price"`
	OutputPrice     float64 `json:"output_price"`
	CacheWritePrice float64 `json:"cache_write_price"`
	CacheReadPrice  float64 `json:"cache_read_price"`
}

// Cost prices counts at p.
func (p ModelPricing) Cost(counts types.TokenCounts) float64 {
	return (float64(counts.InputTokens)*p.InputPrice +
		float64(counts.OutputTokens)*p.OutputPrice +
		float64(counts.CacheCreationInputTokens)*p.CacheWritePrice +
		float64(counts.CacheReadInputTokens)*p.CacheReadPrice) / 1_000_000
}

var (
	opus   = ModelPricing{InputPrice: 15.0, OutputPrice: 75.0, CacheWritePrice: 18.75, CacheReadPrice: 1.50}
	sonnet = ModelPricing{InputPrice: 3.0, OutputPrice: 15.0, CacheWritePrice: 3.75, CacheReadPrice: 0.30}
	haiku  = ModelPricing{InputPrice: 0.80, OutputPrice: 4.0, CacheWritePrice: 1.0, CacheReadPrice: 0.08}
)

// Table is an immutable model price list.
type Table struct {
	models   map[string]ModelPricing
	families map[string]ModelPricing
}

// NewTable returns the built-in price list.
func NewTable() *Table {
	return &Table{
		models: map[string]ModelPricing{
			"claude-3-haiku-20240307": {InputPrice: 0.25, OutputPrice: 1.25, CacheWritePrice: 0.30, CacheReadPrice: 0.03},
			"claude-3-opus-20240229":  opus,
		},
		// Matched by substring when no exact entry exists
		families: map[string]ModelPricing{
			"opus":   opus,
			"sonnet": sonnet,
			"haiku":  haiku,
		},
	}
}

// Lookup returns the pricing for model, trying an exact match first and
// then the model family.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return ModelPricing{}, false
	}
	if p, ok := t.models[model]; ok {
		return p, true
	}
	for family, p := range t.families {
		if strings.Contains(model, family) {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// Cost prices counts for model. ok is false for unknown models.
func (t *Table) Cost(model string, counts types.TokenCounts) (float64, bool) {
	p, ok := t.Lookup(model)
	if !ok {
		return 0, false
	}
	return p.Cost(counts), true
}
