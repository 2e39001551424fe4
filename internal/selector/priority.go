package selector

import (
	"cmp"
	"slices"

	"github.com/abhisek/sqltutor/internal/concept"
	"github.com/abhisek/sqltutor/internal/mastery"
)

const (
	maxWeakPriorities = 3
	maxGapPriorities  = 3
)

// Origin tells where a priority concept came from.
type Origin string

const (
	OriginWeak Origin = "weak"
	OriginGap  Origin = "gap"
)

// Priority is one entry of the ranked concept shortlist that drives
// selection.
type Priority struct {
	Concept     string
	Origin      Origin
	Occurrences int // weak concepts only
}

// PriorityConcepts ranks what the student should work on next: the most
// frequent weak concepts first, then the oldest concept gaps. Duplicates
// are removed case-insensitively, keeping the first entry.
func PriorityConcepts(state *mastery.SubtopicState) []Priority {
	if state == nil {
		return nil
	}

	weak := slices.Clone(state.WeakConcepts)
	// Stable: equal counts keep first-seen order.
	slices.SortStableFunc(weak, func(a, b mastery.WeakConcept) int {
		return cmp.Compare(b.Occurrences, a.Occurrences)
	})

	var out []Priority
	add := func(p Priority) {
		for _, existing := range out {
			if concept.Equal(existing.Concept, p.Concept) {
				return
			}
		}
		out = append(out, p)
	}

	for i := 0; i < len(weak) && i < maxWeakPriorities; i++ {
		add(Priority{Concept: weak[i].Name, Origin: OriginWeak, Occurrences: weak[i].Occurrences})
	}
	for i := 0; i < len(state.ConceptGaps) && i < maxGapPriorities; i++ {
		add(Priority{Concept: state.ConceptGaps[i], Origin: OriginGap})
	}
	return out
}

// Concepts returns the concept names of ps in order.
func Concepts(ps []Priority) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Concept
	}
	return out
}
