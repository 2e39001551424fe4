package mastery

import (
	"maps"
	"slices"
	"time"
)

// Severity ranks how strongly a weak concept should steer selection.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.rank() > 0 }

// WeakConcept is a concept the student has repeatedly struggled with in
// the current subtopic episode.
type WeakConcept struct {
	Name        string
	Occurrences int
	Severity    Severity
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Evaluation is the structured judgement of one answer.
type Evaluation struct {
	Correctness          float64
	WeakConcepts         []string
	MissingConcepts      []string
	ConceptUnderstanding map[string]float64
	MasteryProbability   float64

	// Free text carried through to the student. Not used by the engine.
	Feedback    string
	Explanation string
}

// Clone returns a deep copy.
func (e Evaluation) Clone() Evaluation {
	e.WeakConcepts = slices.Clone(e.WeakConcepts)
	e.MissingConcepts = slices.Clone(e.MissingConcepts)
	e.ConceptUnderstanding = maps.Clone(e.ConceptUnderstanding)
	return e
}

// ProblemRef identifies the problem an evaluation belongs to.
type ProblemRef struct {
	ProblemID string
	ClusterID string
	// AttemptID is optional; a deterministic id is derived when empty.
	AttemptID string
}

// Attempt is one immutable entry in a subtopic's history.
type Attempt struct {
	ID           string
	SubtopicID   string
	ProblemID    string
	ClusterID    string
	Timestamp    time.Time
	Evaluation   Evaluation
	MasteryAfter float64
}

// SubtopicState is the per-(student, subtopic) mastery record.
type SubtopicState struct {
	SubtopicID           string
	AttemptCount         int
	MasteryScore         float64
	WeakConcepts         []WeakConcept
	ConceptGaps          []string
	ConceptUnderstanding map[string]float64 // keyed by normalized concept
	History              []Attempt
	StartedAt            time.Time
}

// NewSubtopicState returns the zeroed state a subtopic starts from.
func NewSubtopicState(subtopicID string, now time.Time) *SubtopicState {
	return &SubtopicState{
		SubtopicID:           subtopicID,
		ConceptUnderstanding: make(map[string]float64),
		StartedAt:            now,
	}
}

// Clone returns a deep copy of the state.
func (s *SubtopicState) Clone() *SubtopicState {
	if s == nil {
		return nil
	}
	out := *s
	out.WeakConcepts = slices.Clone(s.WeakConcepts)
	out.ConceptGaps = slices.Clone(s.ConceptGaps)
	out.ConceptUnderstanding = maps.Clone(s.ConceptUnderstanding)
	if out.ConceptUnderstanding == nil {
		out.ConceptUnderstanding = make(map[string]float64)
	}
	out.History = cloneAttempts(s.History)
	return &out
}

func cloneAttempts(in []Attempt) []Attempt {
	out := make([]Attempt, len(in))
	for i, a := range in {
		a.Evaluation = a.Evaluation.Clone()
		out[i] = a
	}
	return out
}

// SeenProblems returns the set of problem ids attempted in this episode.
func (s *SubtopicState) SeenProblems() map[string]bool {
	seen := make(map[string]bool, len(s.History))
	for _, a := range s.History {
		seen[a.ProblemID] = true
	}
	return seen
}

// Episode is a closed run of attempts that ended in mastery.
type Episode struct {
	SubtopicID  string
	Attempts    []Attempt
	FinalScore  float64
	StartedAt   time.Time
	CompletedAt time.Time
}

// Profile is everything the engine knows about one student.
type Profile struct {
	StudentID         string
	CurrentSubtopicID string
	Subtopics         map[string]*SubtopicState
	Mastered          []string // in the order achieved
	Episodes          []Episode
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func newProfile(studentID string, now time.Time) *Profile {
	return &Profile{
		StudentID: studentID,
		Subtopics: make(map[string]*SubtopicState),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsMastered reports whether the subtopic was mastered at least once.
func (p *Profile) IsMastered(subtopicID string) bool {
	return slices.Contains(p.Mastered, subtopicID)
}

// MasteredSet returns the mastered subtopic ids as a set.
func (p *Profile) MasteredSet() map[string]bool {
	out := make(map[string]bool, len(p.Mastered))
	for _, id := range p.Mastered {
		out[id] = true
	}
	return out
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Mastered = slices.Clone(p.Mastered)
	out.Subtopics = make(map[string]*SubtopicState, len(p.Subtopics))
	for id, st := range p.Subtopics {
		out.Subtopics[id] = st.Clone()
	}
	out.Episodes = make([]Episode, len(p.Episodes))
	for i, ep := range p.Episodes {
		ep.Attempts = cloneAttempts(ep.Attempts)
		out.Episodes[i] = ep
	}
	return &out
}

// UpdateResult is the outcome of applying one evaluation.
type UpdateResult struct {
	// State is the new state. On mastery it is already reset to zero.
	State *SubtopicState
	// Attempt is the attempt recorded for this evaluation.
	Attempt Attempt
	// MasteryBefore is the score before the update.
	MasteryBefore float64
	// MasteryAchieved is set when this evaluation completed the subtopic.
	MasteryAchieved bool
	// Episode holds the closed history when MasteryAchieved is set.
	Episode *Episode
}
