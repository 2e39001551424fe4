// Package selector picks the next practice problem for a subtopic from the
// student's mastery state. Selection is read-only and deterministic: the
// same state and catalog always yield the same problem.
package selector

import (
	"errors"
	"fmt"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/mastery"
)

// Strategy names the path that produced a selection.
type Strategy string

const (
	StrategyCoverage Strategy = "coverage"
	StrategyFallback Strategy = "fallback"
)

// Mastery score bands for the fallback path.
const (
	mediumBandFrom = 0.4
	hardBandFrom   = 0.7
)

// Selection is the chosen problem plus how it was chosen.
type Selection struct {
	Problem  *catalog.Problem
	Cluster  *catalog.Cluster
	Strategy Strategy

	Priority []Priority
	// Targeted lists the priority concepts the chosen cluster covers.
	Targeted []string
	Coverage int
	Score    ProblemScore

	// Difficulty is the band the fallback path aimed for.
	Difficulty catalog.Difficulty
}

// SelectNext chooses the next problem for state within sub. A nil state
// selects as for a fresh subtopic.
func SelectNext(state *mastery.SubtopicState, sub *catalog.Subtopic) (*Selection, error) {
	if sub == nil {
		return nil, errors.New("select next: nil subtopic")
	}
	if state != nil && state.SubtopicID != "" && state.SubtopicID != sub.ID {
		return nil, fmt.Errorf("select next: state is for subtopic %q, not %q", state.SubtopicID, sub.ID)
	}
	if sub.ProblemCount() == 0 {
		return nil, &catalog.EmptyClusterError{SubtopicID: sub.ID}
	}

	seen := map[string]bool{}
	score := 0.0
	if state != nil {
		seen = state.SeenProblems()
		score = state.MasteryScore
	}

	priorities := PriorityConcepts(state)
	if len(priorities) > 0 {
		if sel := selectByCoverage(priorities, sub, seen); sel != nil {
			return sel, nil
		}
	}

	sel := selectByDifficulty(score, sub, seen)
	sel.Priority = priorities
	return sel, nil
}

func selectByCoverage(priorities []Priority, sub *catalog.Subtopic, seen map[string]bool) *Selection {
	var best *catalog.Cluster
	var bestTargets []string
	for _, c := range sub.Clusters {
		if len(c.Problems) == 0 {
			continue
		}
		targets := covered(priorities, c)
		if len(targets) > len(bestTargets) {
			best, bestTargets = c, targets
		}
	}
	if best == nil {
		return nil
	}

	candidates := unseen(best.Problems, seen)
	if len(candidates) == 0 {
		candidates = best.Problems
	}

	var pick *catalog.Problem
	var pickScore ProblemScore
	for _, p := range candidates {
		s := ScoreProblem(priorities, best, p)
		if pick == nil || s.Total > pickScore.Total {
			pick, pickScore = p, s
		}
	}

	return &Selection{
		Problem:  pick,
		Cluster:  best,
		Strategy: StrategyCoverage,
		Priority: priorities,
		Targeted: bestTargets,
		Coverage: len(bestTargets),
		Score:    pickScore,
	}
}

// BandFor maps a mastery score to the difficulty the fallback path aims for.
func BandFor(score float64) catalog.Difficulty {
	switch {
	case score >= hardBandFrom:
		return catalog.DifficultyHard
	case score >= mediumBandFrom:
		return catalog.DifficultyMedium
	default:
		return catalog.DifficultyEasy
	}
}

// selectByDifficulty walks, in order: the first unseen problem of the
// target band, the first problem of the band, the first unseen problem of
// the nearest band present, and the subtopic's first problem.
func selectByDifficulty(score float64, sub *catalog.Subtopic, seen map[string]bool) *Selection {
	target := BandFor(score)
	all := sub.Problems()

	var pick *catalog.Problem
	var firstInBand *catalog.Problem
	for _, p := range all {
		if p.Difficulty != target {
			continue
		}
		if firstInBand == nil {
			firstInBand = p
		}
		if !seen[p.ID] {
			pick = p
			break
		}
	}
	if pick == nil {
		pick = firstInBand
	}
	if pick == nil {
		pick = nearestUnseen(all, target, seen)
	}
	if pick == nil {
		pick = all[0]
	}

	return &Selection{
		Problem:    pick,
		Cluster:    clusterOf(sub, pick),
		Strategy:   StrategyFallback,
		Difficulty: target,
	}
}

// nearestUnseen returns the first unseen problem whose difficulty is closest
// to target. Equal distances prefer the easier band.
func nearestUnseen(problems []*catalog.Problem, target catalog.Difficulty, seen map[string]bool) *catalog.Problem {
	var pick *catalog.Problem
	bestDist := 0
	for _, p := range problems {
		if seen[p.ID] {
			continue
		}
		d := distance(p.Difficulty, target)
		if pick == nil || d < bestDist || (d == bestDist && p.Difficulty < pick.Difficulty) {
			pick, bestDist = p, d
		}
	}
	return pick
}

func distance(a, b catalog.Difficulty) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func unseen(problems []*catalog.Problem, seen map[string]bool) []*catalog.Problem {
	var out []*catalog.Problem
	for _, p := range problems {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func clusterOf(sub *catalog.Subtopic, p *catalog.Problem) *catalog.Cluster {
	for _, c := range sub.Clusters {
		for _, q := range c.Problems {
			if q == p {
				return c
			}
		}
	}
	return nil
}
