package llm

import (
	"strings"

	"github.com/abhisek/sqltutor/internal/store"
)

// ModelCost is USD per million tokens.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

func (c ModelCost) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*c.InputPerMTok/1_000_000 +
		float64(outputTokens)*c.OutputPerMTok/1_000_000
}

// LookupCost returns pricing for a model id. Dated snapshots
// ("claude-haiku-4-5-20251001") and OpenRouter vendor prefixes
// ("openai/gpt-4o-mini") fall back to the base entry.
func LookupCost(modelID string) (ModelCost, bool) {
	id := modelID
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	if c, ok := modelCosts[id]; ok {
		return c, true
	}
	if base, ok := stripDateSuffix(id); ok {
		c, ok := modelCosts[base]
		return c, ok
	}
	return ModelCost{}, false
}

// stripDateSuffix removes a trailing -YYYYMMDD or -YYYY-MM-DD.
func stripDateSuffix(id string) (string, bool) {
	for _, n := range []int{9, 11} {
		if len(id) <= n {
			continue
		}
		suffix := id[len(id)-n:]
		if suffix[0] != '-' || !isDate(suffix[1:]) {
			continue
		}
		return id[:len(id)-n], true
	}
	return "", false
}

func isDate(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r != '-':
			return false
		}
	}
	return digits == 8
}

// UsageCost is the priced form of one store.LLMUsage row.
type UsageCost struct {
	store.LLMUsage
	CostUSD float64
	Priced  bool
}

// PriceUsage attaches costs to aggregated usage rows.
func PriceUsage(rows []store.LLMUsage) (out []UsageCost, total float64) {
	for _, r := range rows {
		uc := UsageCost{LLMUsage: r}
		if c, ok := LookupCost(r.Model); ok {
			uc.CostUSD = c.Cost(r.InputTokens, r.OutputTokens)
			uc.Priced = true
			total += uc.CostUSD
		}
		out = append(out, uc)
	}
	return out, total
}

// Prices in USD per million tokens for the models sqltutor grades with.
var modelCosts = map[string]ModelCost{
	"claude-haiku-4-5":  {1, 5},
	"claude-sonnet-4-5": {3, 15},
	"claude-sonnet-4":   {3, 15},
	"claude-3-5-haiku":  {0.8, 4},

	"gpt-4o":       {2.5, 10},
	"gpt-4o-mini":  {0.15, 0.6},
	"gpt-4.1":      {2, 8},
	"gpt-4.1-mini": {0.4, 1.6},
	"gpt-4.1-nano": {0.1, 0.4},
	"gpt-5-mini":   {0.25, 2},
	"gpt-5-nano":   {0.05, 0.4},

	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.5-flash":      {0.3, 2.5},
	"gemini-2.5-flash-lite": {0.1, 0.4},
	"gemini-2.5-pro":        {1.25, 10},
}
