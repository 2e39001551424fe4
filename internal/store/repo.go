package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// ProfileDataVersion is the current persisted layout version.
const ProfileDataVersion = 1

// ProfileData is the persisted layout of one student profile. It is also
// the export/import document.
type ProfileData struct {
	Version           int                      `json:"version"`
	StudentID         string                   `json:"student_id"`
	CurrentSubtopicID string                   `json:"current_subtopic_id,omitempty"`
	Mastered          []string                 `json:"mastered"`
	Subtopics         map[string]*SubtopicData `json:"subtopics"`
	Episodes          []EpisodeData            `json:"episodes"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// SubtopicData is the persisted state of one (student, subtopic) pair.
type SubtopicData struct {
	SubtopicID           string             `json:"subtopic_id"`
	AttemptCount         int                `json:"attempt_count"`
	MasteryScore         float64            `json:"mastery_score"`
	WeakConcepts         []WeakConceptData  `json:"weak_concepts"`
	ConceptGaps          []string           `json:"concept_gaps"`
	ConceptUnderstanding map[string]float64 `json:"concept_understanding"`
	History              []AttemptData      `json:"history"`
	StartedAt            time.Time          `json:"started_at"`
}

// WeakConceptData is a persisted weak concept entry.
type WeakConceptData struct {
	Name        string    `json:"name"`
	Occurrences int       `json:"occurrences"`
	Severity    string    `json:"severity"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// AttemptData is a persisted attempt with its evaluation snapshot.
type AttemptData struct {
	ID                   string             `json:"id"`
	SubtopicID           string             `json:"subtopic_id"`
	ProblemID            string             `json:"problem_id"`
	ClusterID            string             `json:"cluster_id,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
	Correctness          float64            `json:"correctness"`
	MasteryProbability   float64            `json:"mastery_probability"`
	WeakConcepts         []string           `json:"weak_concepts,omitempty"`
	MissingConcepts      []string           `json:"missing_concepts,omitempty"`
	ConceptUnderstanding map[string]float64 `json:"concept_understanding,omitempty"`
	Feedback             string             `json:"feedback,omitempty"`
	Explanation          string             `json:"explanation,omitempty"`
	MasteryAfter         float64            `json:"mastery_after"`
}

// EpisodeData is a closed run of attempts that ended in mastery.
type EpisodeData struct {
	SubtopicID  string        `json:"subtopic_id"`
	Attempts    []AttemptData `json:"attempts"`
	FinalScore  float64       `json:"final_score"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ProfileCommit is the unit of persistence for one engine update. All
// parts are written in a single transaction.
type ProfileCommit struct {
	StudentID         string
	CurrentSubtopicID string
	Mastered          []string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Subtopic, when set, replaces the stored state of that subtopic.
	Subtopic *SubtopicData
	// Episode, when set, is appended to the student's episode archive.
	Episode *EpisodeData
}

// ProfileSummary is a row of the profile listing.
type ProfileSummary struct {
	StudentID         string
	CurrentSubtopicID string
	MasteredCount     int
	UpdatedAt         time.Time
}

// ProfileRepo persists student profiles.
type ProfileRepo interface {
	// Load returns the stored profile, or nil if the student is unknown.
	Load(ctx context.Context, studentID string) (*ProfileData, error)

	// Commit writes a profile header plus optional subtopic state and
	// episode atomically.
	Commit(ctx context.Context, c *ProfileCommit) error

	// Replace overwrites everything stored for the profile's student.
	Replace(ctx context.Context, p *ProfileData) error

	// List returns all stored profiles ordered by student id.
	List(ctx context.Context) ([]ProfileSummary, error)
}

// Mastery event kinds.
const (
	MasteryEventAttempt  = "attempt"
	MasteryEventAchieved = "achieved"
	MasteryEventReset    = "reset"
)

// MasteryEventData captures one mastery state change for the audit trail.
type MasteryEventData struct {
	StudentID     string
	SubtopicID    string
	Kind          string
	ProblemID     string
	ClusterID     string
	AttemptID     string
	Correctness   float64
	MasteryBefore float64
	MasteryAfter  float64
	AttemptCount  int
}

// MasteryEvent is a stored mastery event.
type MasteryEvent struct {
	MasteryEventData
	ID        int64
	Sequence  int64
	CreatedAt time.Time
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	LLMRequestEventData
	ID        int64
	Sequence  int64
	CreatedAt time.Time
}

// LLMUsage aggregates LLM requests for one provider/model pair.
type LLMUsage struct {
	Provider     string
	Model        string
	Calls        int
	Failures     int
	InputTokens  int64
	OutputTokens int64
	LatencyMs    int64
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// AppendMasteryEvent records a mastery state change.
	AppendMasteryEvent(ctx context.Context, data MasteryEventData) error

	// QueryMasteryEvents returns a student's mastery events in sequence order.
	QueryMasteryEvents(ctx context.Context, studentID string, opts QueryOpts) ([]MasteryEvent, error)

	// QueryLLMRequests returns LLM request events, newest first.
	QueryLLMRequests(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// LLMUsageByModel aggregates LLM request events per provider and model.
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}
