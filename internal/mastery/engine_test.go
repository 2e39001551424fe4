package mastery

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func eval(correctness, prob float64) Evaluation {
	return Evaluation{Correctness: correctness, MasteryProbability: prob}
}

func applyN(t *testing.T, st *SubtopicState, evs ...Evaluation) (*SubtopicState, []*UpdateResult) {
	t.Helper()
	var results []*UpdateResult
	for i, ev := range evs {
		res, err := ApplyEvaluation(st, ev, ProblemRef{ProblemID: "p1", ClusterID: "c1"}, t0.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("apply %d: %v", i+1, err)
		}
		results = append(results, res)
		st = res.State
	}
	return st, results
}

func TestNewSubtopicState_Zeroed(t *testing.T) {
	st := NewSubtopicState("inner-join", t0)
	if st.AttemptCount != 0 || st.MasteryScore != 0 || len(st.History) != 0 {
		t.Errorf("fresh state not zeroed: %+v", st)
	}
	if len(st.WeakConcepts) != 0 || len(st.ConceptGaps) != 0 || len(st.ConceptUnderstanding) != 0 {
		t.Errorf("fresh state has concepts: %+v", st)
	}
}

func TestApplyEvaluation_CapsFirstTwoAttempts(t *testing.T) {
	st, results := applyN(t, NewSubtopicState("inner-join", t0), eval(1, 1), eval(1, 1))

	if got := results[0].State.MasteryScore; got > 0.30 {
		t.Errorf("after 1st update score = %v, want <= 0.30", got)
	}
	if got := results[0].State.MasteryScore; got != 0.30 {
		t.Errorf("perfect 1st answer should hit the cap exactly, got %v", got)
	}
	if got := st.MasteryScore; got > 0.50 {
		t.Errorf("after 2nd update score = %v, want <= 0.50", got)
	}
	for _, r := range results {
		if r.MasteryAchieved {
			t.Error("mastery must not be achieved before the 3rd attempt")
		}
	}
}

func TestApplyEvaluation_UncappedFromThirdAttempt(t *testing.T) {
	st, results := applyN(t, NewSubtopicState("inner-join", t0), eval(0.8, 0.8), eval(0.8, 0.8), eval(0.8, 0.8))

	if st.AttemptCount != 3 {
		t.Fatalf("attempt count = %d, want 3", st.AttemptCount)
	}
	if st.MasteryScore <= 0.50 {
		t.Errorf("3rd update should exceed the 2nd-attempt cap, got %v", st.MasteryScore)
	}
	if st.MasteryScore >= MasteryThreshold {
		t.Errorf("score %v should stay below threshold for a 0.8 signal", st.MasteryScore)
	}
	if results[2].MasteryAchieved {
		t.Error("mastery achieved below threshold")
	}
}

func TestApplyEvaluation_MasteryResetsState(t *testing.T) {
	start := NewSubtopicState("inner-join", t0)
	ev := Evaluation{
		Correctness:          1,
		MasteryProbability:   1,
		WeakConcepts:         []string{"ON clause"},
		MissingConcepts:      []string{"table aliases"},
		ConceptUnderstanding: map[string]float64{"INNER JOIN": 0.9},
	}
	st, results := applyN(t, start, ev, ev, ev)

	last := results[2]
	if !last.MasteryAchieved {
		t.Fatalf("expected mastery on 3rd perfect attempt, score before = %v", last.MasteryBefore)
	}
	if last.Episode == nil || len(last.Episode.Attempts) != 3 {
		t.Fatalf("episode = %+v, want 3 attempts", last.Episode)
	}
	if last.Episode.FinalScore < MasteryThreshold {
		t.Errorf("episode final score = %v", last.Episode.FinalScore)
	}
	if !last.Episode.StartedAt.Equal(t0) {
		t.Errorf("episode start = %v, want %v", last.Episode.StartedAt, t0)
	}

	if st.AttemptCount != 0 || st.MasteryScore != 0 || len(st.History) != 0 {
		t.Errorf("state not reset after mastery: %+v", st)
	}
	if len(st.WeakConcepts) != 0 || len(st.ConceptGaps) != 0 || len(st.ConceptUnderstanding) != 0 {
		t.Errorf("concept state not reset: %+v", st)
	}
	if st.SubtopicID != "inner-join" {
		t.Errorf("subtopic id = %q", st.SubtopicID)
	}
}

func TestApplyEvaluation_AttemptCountMatchesHistory(t *testing.T) {
	st := NewSubtopicState("outer-join", t0)
	for i := 0; i < 6; i++ {
		res, err := ApplyEvaluation(st, eval(0.4, 0.3), ProblemRef{ProblemID: "p"}, t0)
		if err != nil {
			t.Fatal(err)
		}
		st = res.State
		if st.AttemptCount != len(st.History) {
			t.Fatalf("step %d: attempt count %d != history %d", i, st.AttemptCount, len(st.History))
		}
		if st.MasteryScore < 0 || st.MasteryScore > 1 {
			t.Fatalf("step %d: score %v out of range", i, st.MasteryScore)
		}
		if res.Attempt.MasteryAfter != st.MasteryScore {
			t.Errorf("attempt mastery_after %v != state score %v", res.Attempt.MasteryAfter, st.MasteryScore)
		}
	}
}

func TestApplyEvaluation_ScoreFallsOnRegression(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0), eval(0.8, 0.8), eval(0.8, 0.8), eval(0.8, 0.8))
	high := st.MasteryScore
	st, _ = applyN(t, st, eval(0, 0))
	if st.MasteryScore >= high {
		t.Errorf("score should drop after a wrong answer: %v -> %v", high, st.MasteryScore)
	}
}

func TestApplyEvaluation_MonotoneInSignal(t *testing.T) {
	base, _ := applyN(t, NewSubtopicState("s", t0), eval(0.5, 0.5), eval(0.5, 0.5), eval(0.5, 0.5))

	prev := -1.0
	for _, c := range []float64{0, 0.25, 0.5, 0.75, 1} {
		res, err := ApplyEvaluation(base, eval(c, 0.2), ProblemRef{ProblemID: "p"}, t0)
		if err != nil {
			t.Fatal(err)
		}
		if res.State.MasteryScore < prev {
			t.Errorf("score not monotone in correctness at %v", c)
		}
		prev = res.State.MasteryScore
	}
}

func TestApplyEvaluation_WeakConcepts(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0),
		Evaluation{WeakConcepts: []string{"WHERE clause", "JOIN syntax"}},
		Evaluation{WeakConcepts: []string{"where  CLAUSE"}},
	)

	if len(st.WeakConcepts) != 2 {
		t.Fatalf("weak concepts = %+v, want 2 entries", st.WeakConcepts)
	}
	where := st.WeakConcepts[0]
	if where.Name != "WHERE clause" {
		t.Errorf("first spelling should be kept, got %q", where.Name)
	}
	if where.Occurrences != 2 || where.Severity != SeverityMedium {
		t.Errorf("WHERE clause = %+v, want 2 occurrences / medium", where)
	}
	if !where.FirstSeen.Equal(t0) || !where.LastSeen.Equal(t0.Add(time.Minute)) {
		t.Errorf("seen times = %v / %v", where.FirstSeen, where.LastSeen)
	}
	if st.WeakConcepts[1].Severity != SeverityLow {
		t.Errorf("single occurrence severity = %v, want low", st.WeakConcepts[1].Severity)
	}

	st, _ = applyN(t, st, Evaluation{WeakConcepts: []string{"WHERE clause"}})
	if st.WeakConcepts[0].Severity != SeverityHigh {
		t.Errorf("3 occurrences severity = %v, want high", st.WeakConcepts[0].Severity)
	}
}

func TestApplyEvaluation_SeverityFromUnderstanding(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0), Evaluation{
		WeakConcepts:         []string{"LEFT JOIN", "NULL handling"},
		ConceptUnderstanding: map[string]float64{"left join": 0.1, "NULL Handling": 0.5},
	})
	if st.WeakConcepts[0].Severity != SeverityHigh {
		t.Errorf("LEFT JOIN severity = %v, want high", st.WeakConcepts[0].Severity)
	}
	if st.WeakConcepts[1].Severity != SeverityMedium {
		t.Errorf("NULL handling severity = %v, want medium", st.WeakConcepts[1].Severity)
	}
	if st.ConceptUnderstanding["left join"] != 0.1 {
		t.Errorf("understanding not keyed by normalized concept: %v", st.ConceptUnderstanding)
	}
}

func TestApplyEvaluation_GapsDeduplicated(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0),
		Evaluation{MissingConcepts: []string{"JOIN syntax", "GROUP BY"}},
		Evaluation{MissingConcepts: []string{"join  SYNTAX", "Aggregate functions"}},
		Evaluation{MissingConcepts: []string{"group by"}},
	)
	want := []string{"JOIN syntax", "GROUP BY", "Aggregate functions"}
	if !reflect.DeepEqual(st.ConceptGaps, want) {
		t.Errorf("gaps = %v, want %v", st.ConceptGaps, want)
	}
}

func TestApplyEvaluation_UnderstandingLastWriteWins(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0),
		Evaluation{ConceptUnderstanding: map[string]float64{"INNER JOIN": 0.2, "ON clause": 0.4}},
		Evaluation{ConceptUnderstanding: map[string]float64{"inner join": 0.9}},
	)
	if st.ConceptUnderstanding["inner join"] != 0.9 {
		t.Errorf("inner join = %v, want 0.9", st.ConceptUnderstanding["inner join"])
	}
	if st.ConceptUnderstanding["on clause"] != 0.4 {
		t.Errorf("on clause = %v, want 0.4", st.ConceptUnderstanding["on clause"])
	}
}

func TestApplyEvaluation_ContractViolations(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0), Evaluation{Correctness: 0.5, WeakConcepts: []string{"JOIN syntax"}})
	before := st.Clone()

	bad := []Evaluation{
		{Correctness: 1.5},
		{Correctness: -0.1},
		{Correctness: math.NaN()},
		{MasteryProbability: 2},
		{WeakConcepts: []string{"  "}},
		{MissingConcepts: []string{""}},
		{ConceptUnderstanding: map[string]float64{"JOIN": 1.2}},
	}
	for i, ev := range bad {
		res, err := ApplyEvaluation(st, ev, ProblemRef{ProblemID: "p"}, t0)
		var ce *OracleContractError
		if !errors.As(err, &ce) {
			t.Errorf("case %d: expected OracleContractError, got %v", i, err)
		}
		if res != nil {
			t.Errorf("case %d: expected nil result", i)
		}
	}
	if !reflect.DeepEqual(st, before) {
		t.Error("state mutated by rejected evaluations")
	}
}

func TestApplyEvaluation_DoesNotMutateInput(t *testing.T) {
	st, _ := applyN(t, NewSubtopicState("s", t0), Evaluation{
		Correctness:          0.6,
		WeakConcepts:         []string{"JOIN syntax"},
		MissingConcepts:      []string{"ON clause"},
		ConceptUnderstanding: map[string]float64{"JOIN syntax": 0.3},
	})
	before := st.Clone()

	ev := Evaluation{
		Correctness:          0.9,
		MasteryProbability:   0.7,
		WeakConcepts:         []string{"JOIN syntax", "Table aliases"},
		MissingConcepts:      []string{"USING clause"},
		ConceptUnderstanding: map[string]float64{"JOIN syntax": 0.8},
	}
	res, err := ApplyEvaluation(st, ev, ProblemRef{ProblemID: "p2"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(st, before) {
		t.Error("input state was mutated")
	}

	again, err := ApplyEvaluation(st, ev, ProblemRef{ProblemID: "p2"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res, again) {
		t.Error("same inputs produced different results")
	}
}

func TestApplyEvaluation_RejectsCorruptState(t *testing.T) {
	st := NewSubtopicState("s", t0)
	st.AttemptCount = 2
	st.History = []Attempt{{ID: "a", ProblemID: "p"}}

	_, err := ApplyEvaluation(st, eval(1, 1), ProblemRef{ProblemID: "p"}, t0)
	var ce *CorruptStateError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStateError, got %v", err)
	}
	if ce.SubtopicID != "s" {
		t.Errorf("subtopic = %q", ce.SubtopicID)
	}
}

func TestApplyEvaluation_AttemptRecorded(t *testing.T) {
	ev := Evaluation{Correctness: 0.5, Feedback: "close", WeakConcepts: []string{"x"}}
	res, err := ApplyEvaluation(NewSubtopicState("s", t0), ev, ProblemRef{ProblemID: "p9", ClusterID: "c2", AttemptID: "fixed"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	a := res.Attempt
	if a.ID != "fixed" || a.ProblemID != "p9" || a.ClusterID != "c2" || a.SubtopicID != "s" {
		t.Errorf("attempt = %+v", a)
	}
	if a.Evaluation.Feedback != "close" {
		t.Errorf("evaluation snapshot missing feedback")
	}

	derived, err := ApplyEvaluation(NewSubtopicState("s", t0), ev, ProblemRef{ProblemID: "p9"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if derived.Attempt.ID == "" {
		t.Error("expected a derived attempt id")
	}
}

func TestMasteryCap(t *testing.T) {
	tests := []struct {
		attempts int
		want     float64
	}{
		{1, 0.30},
		{2, 0.50},
		{3, 1.0},
		{10, 1.0},
	}
	for _, tt := range tests {
		if got := MasteryCap(tt.attempts); got != tt.want {
			t.Errorf("MasteryCap(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
