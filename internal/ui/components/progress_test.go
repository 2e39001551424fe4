package components

import (
	"strings"
	"testing"
)

func TestMasteryBar_Plain(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "x  [..........]   0%"},
		{0.5, "x  [#####.....]  50%"},
		{0.85, "x  [########..]  85%"},
		{1.2, "x  [##########] 120%"},
	}
	for _, tt := range tests {
		got := MasteryBar{Label: "x", Score: tt.score, Width: 19}.Plain()
		if got != tt.want {
			t.Errorf("Plain(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestMasteryBar_ViewContainsLabelAndPercent(t *testing.T) {
	out := MasteryBar{Label: "OUTER JOIN", Score: 0.3, Width: 40}.View()
	if !strings.Contains(out, "OUTER JOIN") || !strings.Contains(out, "30%") {
		t.Errorf("View() = %q", out)
	}
}
