package llm

import (
	"math"
	"testing"

	"github.com/abhisek/sqltutor/internal/store"
)

func TestLookupCost(t *testing.T) {
	tests := []struct {
		id     string
		want   ModelCost
		wantOK bool
	}{
		{"gpt-4o-mini", ModelCost{0.15, 0.6}, true},
		{"claude-haiku-4-5-20251001", ModelCost{1, 5}, true},
		{"gpt-4o-mini-2024-07-18", ModelCost{0.15, 0.6}, true},
		{"openai/gpt-4o-mini", ModelCost{0.15, 0.6}, true},
		{"mock", ModelCost{}, false},
		{"some-model-20250101", ModelCost{}, false},
	}
	for _, tt := range tests {
		got, ok := LookupCost(tt.id)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("LookupCost(%q) = %v, %v; want %v, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPriceUsage(t *testing.T) {
	rows := []store.LLMUsage{
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Calls: 10, InputTokens: 1_000_000, OutputTokens: 200_000},
		{Provider: "mock", Model: "mock", Calls: 3, InputTokens: 300},
	}
	out, total := PriceUsage(rows)
	if len(out) != 2 {
		t.Fatalf("rows = %d", len(out))
	}
	if !out[0].Priced || math.Abs(out[0].CostUSD-2.0) > 1e-9 {
		t.Errorf("haiku row = %+v, want $2.00", out[0])
	}
	if out[1].Priced || out[1].CostUSD != 0 {
		t.Errorf("mock row = %+v, want unpriced", out[1])
	}
	if math.Abs(total-2.0) > 1e-9 {
		t.Errorf("total = %f", total)
	}
}
