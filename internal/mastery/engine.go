package mastery

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/sqltutor/internal/concept"
)

const (
	// MasteryThreshold is the score at which a subtopic counts as mastered.
	MasteryThreshold = 0.80
	// MinAttemptsForMastery is the attempt count before which mastery can
	// never be achieved.
	MinAttemptsForMastery = 3

	// learningRate is the weight of the new signal in the moving average.
	learningRate = 0.7

	// Understanding scores below these raise a weak concept's severity.
	understandingHigh   = 0.30
	understandingMedium = 0.60
)

// attemptCaps bounds the mastery score by attempt index (1-based).
// Attempts beyond the table are uncapped.
var attemptCaps = []float64{0.30, 0.50}

// MasteryCap returns the ceiling on the mastery score after the given
// number of attempts.
func MasteryCap(attemptCount int) float64 {
	if attemptCount >= 1 && attemptCount <= len(attemptCaps) {
		return attemptCaps[attemptCount-1]
	}
	return 1.0
}

// ApplyEvaluation folds one evaluation into a subtopic state. It never
// modifies state; the returned result holds a new state. A nil state is
// treated as a fresh one for ref's subtopic.
//
// Steps, in order: record the attempt; update weak concepts; append new
// concept gaps; merge concept understanding; move the score toward the
// evaluation signal; clamp by attempt index; check for mastery.
func ApplyEvaluation(state *SubtopicState, ev Evaluation, ref ProblemRef, now time.Time) (*UpdateResult, error) {
	if state == nil {
		return nil, errors.New("apply evaluation: nil state")
	}
	if ref.ProblemID == "" {
		return nil, errors.New("apply evaluation: empty problem id")
	}
	if reason := invariantViolation(state); reason != "" {
		return nil, &CorruptStateError{SubtopicID: state.SubtopicID, Reason: reason}
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	next := state.Clone()
	understanding := normalizeUnderstanding(ev.ConceptUnderstanding)

	// 1. Attempt.
	attempt := Attempt{
		ID:         ref.AttemptID,
		SubtopicID: next.SubtopicID,
		ProblemID:  ref.ProblemID,
		ClusterID:  ref.ClusterID,
		Timestamp:  now,
		Evaluation: ev.Clone(),
	}
	if attempt.ID == "" {
		attempt.ID = deriveAttemptID(next, ref)
	}
	next.AttemptCount++

	// 2. Weak concepts.
	for _, name := range ev.WeakConcepts {
		idx := weakConceptIndex(next.WeakConcepts, name)
		if idx < 0 {
			next.WeakConcepts = append(next.WeakConcepts, WeakConcept{Name: name, FirstSeen: now})
			idx = len(next.WeakConcepts) - 1
		}
		wc := &next.WeakConcepts[idx]
		wc.Occurrences++
		wc.LastSeen = now

		u, ok := understanding[concept.Normalize(name)]
		if !ok {
			u, ok = next.ConceptUnderstanding[concept.Normalize(name)]
		}
		wc.Severity = severityFor(wc.Occurrences, u, ok)
	}

	// 3. Concept gaps.
	for _, name := range ev.MissingConcepts {
		if !containsConcept(next.ConceptGaps, name) {
			next.ConceptGaps = append(next.ConceptGaps, name)
		}
	}

	// 4. Concept understanding, last write wins.
	for c, v := range understanding {
		next.ConceptUnderstanding[c] = v
	}

	// 5-6. Score.
	before := state.MasteryScore
	next.MasteryScore = nextScore(before, ev, next.AttemptCount)
	attempt.MasteryAfter = next.MasteryScore
	next.History = append(next.History, attempt)

	res := &UpdateResult{
		State:         next,
		Attempt:       attempt,
		MasteryBefore: before,
	}

	// 7. Mastery.
	if next.AttemptCount >= MinAttemptsForMastery && next.MasteryScore >= MasteryThreshold {
		res.MasteryAchieved = true
		res.Episode = &Episode{
			SubtopicID:  next.SubtopicID,
			Attempts:    next.History,
			FinalScore:  next.MasteryScore,
			StartedAt:   next.StartedAt,
			CompletedAt: now,
		}
		res.State = NewSubtopicState(next.SubtopicID, now)
	}
	return res, nil
}

// Signal combines correctness and the oracle's mastery probability into
// the target the score moves toward.
func Signal(ev Evaluation) float64 {
	return 0.5*ev.Correctness + 0.5*ev.MasteryProbability
}

func nextScore(prev float64, ev Evaluation, attemptCount int) float64 {
	raw := prev + learningRate*(Signal(ev)-prev)
	return math.Max(0, math.Min(raw, MasteryCap(attemptCount)))
}

func severityFor(occurrences int, understanding float64, known bool) Severity {
	sev := SeverityLow
	switch {
	case occurrences >= 3:
		sev = SeverityHigh
	case occurrences == 2:
		sev = SeverityMedium
	}
	if !known {
		return sev
	}
	switch {
	case understanding < understandingHigh:
		return SeverityHigh
	case understanding < understandingMedium && sev.rank() < SeverityMedium.rank():
		return SeverityMedium
	}
	return sev
}

func normalizeUnderstanding(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for c, v := range in {
		out[concept.Normalize(c)] = v
	}
	return out
}

func weakConceptIndex(wcs []WeakConcept, name string) int {
	for i := range wcs {
		if concept.Equal(wcs[i].Name, name) {
			return i
		}
	}
	return -1
}

func containsConcept(list []string, name string) bool {
	for _, c := range list {
		if concept.Equal(c, name) {
			return true
		}
	}
	return false
}

// deriveAttemptID builds a stable id from the episode and attempt index so
// that ApplyEvaluation stays deterministic when the caller supplies none.
func deriveAttemptID(s *SubtopicState, ref ProblemRef) string {
	name := fmt.Sprintf("%s/%d/%d/%s", s.SubtopicID, s.StartedAt.UnixNano(), s.AttemptCount+1, ref.ProblemID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// invariantViolation returns a description of the first broken state
// invariant, or "" when the state is sound.
func invariantViolation(s *SubtopicState) string {
	switch {
	case s.SubtopicID == "":
		return "empty subtopic id"
	case s.AttemptCount < 0:
		return fmt.Sprintf("negative attempt count %d", s.AttemptCount)
	case s.AttemptCount != len(s.History):
		return fmt.Sprintf("attempt count %d does not match history length %d", s.AttemptCount, len(s.History))
	case math.IsNaN(s.MasteryScore) || s.MasteryScore < 0 || s.MasteryScore > 1:
		return fmt.Sprintf("mastery score %v outside [0,1]", s.MasteryScore)
	case s.AttemptCount >= 1 && s.AttemptCount <= len(attemptCaps) && s.MasteryScore > MasteryCap(s.AttemptCount):
		return fmt.Sprintf("mastery score %v above cap for attempt %d", s.MasteryScore, s.AttemptCount)
	}
	for _, wc := range s.WeakConcepts {
		if wc.Occurrences < 1 {
			return fmt.Sprintf("weak concept %q has %d occurrences", wc.Name, wc.Occurrences)
		}
		if !wc.Severity.Valid() {
			return fmt.Sprintf("weak concept %q has invalid severity %q", wc.Name, wc.Severity)
		}
	}
	return ""
}
