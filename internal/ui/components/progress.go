package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/sqltutor/internal/ui/theme"
)

// MasteryBar renders a subtopic mastery score as a horizontal bar.
type MasteryBar struct {
	Label    string
	Score    float64
	Mastered bool
	Width    int
}

// View renders the bar followed by the score as a percentage.
func (b MasteryBar) View() string {
	var result string
	if b.Label != "" {
		result += theme.Body.Render(b.Label) + "  "
	}

	barWidth := b.Width - lipgloss.Width(result) - 6
	if barWidth < 4 {
		barWidth = 4
	}
	filled := int(float64(barWidth) * b.Score)
	filled = max(0, min(filled, barWidth))

	fill := theme.ProgressFilled
	if b.Mastered {
		fill = theme.ProgressMastered
	}
	result += fill.Render(strings.Repeat(" ", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled))

	return result + theme.Subtitle.Render(fmt.Sprintf(" %4d%%", int(b.Score*100+0.5)))
}

// Plain renders the bar without colors, for logs and non-terminal output.
func (b MasteryBar) Plain() string {
	barWidth := max(b.Width-len(b.Label)-8, 4)
	filled := max(0, min(int(float64(barWidth)*b.Score), barWidth))
	return fmt.Sprintf("%s  [%s%s] %3d%%", b.Label,
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), int(b.Score*100+0.5))
}
