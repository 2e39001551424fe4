// Package tutor runs practice sessions: it asks the selector for the next
// problem, sends the student's answer to the oracle, commits the evaluation
// through the mastery service and moves on to the next subtopic once the
// current one is mastered.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/logger"
	"github.com/abhisek/sqltutor/internal/mastery"
	"github.com/abhisek/sqltutor/internal/oracle"
	"github.com/abhisek/sqltutor/internal/selector"
)

// ErrSessionDone is returned by Submit once every subtopic is mastered.
var ErrSessionDone = errors.New("session complete: every subtopic is mastered")

// Tutor wires the catalog, the mastery service and an oracle together.
// It is safe for concurrent use; a single Session is not.
type Tutor struct {
	catalog *catalog.Catalog
	mastery *mastery.Service
	oracle  oracle.Oracle
	log     *logger.Logger
	now     func() time.Time
}

// New creates a tutor.
func New(cat *catalog.Catalog, svc *mastery.Service, orc oracle.Oracle, log *logger.Logger) *Tutor {
	return &Tutor{
		catalog: cat,
		mastery: svc,
		oracle:  orc,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// Session is one student's practice run.
type Session struct {
	ID        string
	StudentID string
	StartedAt time.Time

	// Subtopic is the subtopic being practiced. Nil once Done.
	Subtopic *catalog.Subtopic
	// Current is the problem waiting for an answer. Nil once Done.
	Current *selector.Selection

	Answered int
	// Solved counts answers graded fully correct.
	Solved   int
	Mastered []string // subtopics mastered during this session
	Done     bool
}

// Feedback is the outcome of one submitted answer.
type Feedback struct {
	Problem    *catalog.Problem
	Evaluation *mastery.Evaluation
	Result     *mastery.UpdateResult

	// Advanced is the subtopic the session moved to after a mastery.
	Advanced *catalog.Subtopic
	// Completed is set when the last subtopic was mastered.
	Completed bool
}

// Start opens a session at the student's current subtopic, or at the first
// unmastered one in catalog order.
func (t *Tutor) Start(ctx context.Context, studentID string) (*Session, error) {
	profile, err := t.mastery.Profile(ctx, studentID)
	if err != nil {
		return nil, err
	}

	s := t.newSession(studentID)
	if id := profile.CurrentSubtopicID; id != "" && !profile.IsMastered(id) {
		if sub, err := t.catalog.GetSubtopic(id); err == nil {
			return s, t.enter(ctx, s, sub)
		}
		t.log.Warn("current subtopic no longer in catalog", "student_id", studentID, "subtopic_id", id)
	}

	sub, ok := t.catalog.NextSubtopic(profile.MasteredSet())
	if !ok {
		s.Done = true
		return s, nil
	}
	return s, t.enter(ctx, s, sub)
}

// StartAt opens a session at a specific subtopic, mastered or not.
func (t *Tutor) StartAt(ctx context.Context, studentID, subtopicID string) (*Session, error) {
	sub, err := t.catalog.GetSubtopic(subtopicID)
	if err != nil {
		return nil, err
	}
	s := t.newSession(studentID)
	return s, t.enter(ctx, s, sub)
}

func (t *Tutor) newSession(studentID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StudentID: studentID,
		StartedAt: t.now(),
	}
}

// enter switches the session to sub and selects its first problem.
func (t *Tutor) enter(ctx context.Context, s *Session, sub *catalog.Subtopic) error {
	if err := t.mastery.SetCurrentSubtopic(ctx, s.StudentID, sub.ID); err != nil {
		return err
	}
	s.Subtopic = sub
	t.log.Info("subtopic started", "session_id", s.ID, "student_id", s.StudentID, "subtopic_id", sub.ID)
	return t.selectNext(ctx, s)
}

func (t *Tutor) selectNext(ctx context.Context, s *Session) error {
	state, err := t.mastery.State(ctx, s.StudentID, s.Subtopic.ID)
	if err != nil {
		return err
	}
	sel, err := selector.SelectNext(state, s.Subtopic)
	if err != nil {
		return fmt.Errorf("select next problem: %w", err)
	}
	s.Current = sel
	t.log.Debug("problem selected",
		"session_id", s.ID,
		"subtopic_id", s.Subtopic.ID,
		"problem_id", sel.Problem.ID,
		"strategy", string(sel.Strategy),
		"coverage", sel.Coverage,
		"targeted", sel.Targeted,
	)
	return nil
}

// Submit grades answer against the current problem and commits the result.
// When the oracle fails nothing is recorded and the same problem stays
// current, so the caller may simply submit again.
func (t *Tutor) Submit(ctx context.Context, s *Session, answer string) (*Feedback, error) {
	if s.Done || s.Current == nil {
		return nil, ErrSessionDone
	}
	sub, sel := s.Subtopic, s.Current

	state, err := t.mastery.State(ctx, s.StudentID, sub.ID)
	if err != nil {
		return nil, err
	}
	var weak []string
	for _, w := range state.WeakConcepts {
		weak = append(weak, w.Name)
	}

	ev, err := t.oracle.Evaluate(ctx, oracle.Request{
		StudentID:    s.StudentID,
		SubtopicID:   sub.ID,
		SubtopicName: sub.Name,
		Problem:      sel.Problem,
		Answer:       answer,
		KnownWeak:    weak,
	})
	if err != nil {
		t.log.Warn("evaluation failed", "session_id", s.ID, "problem_id", sel.Problem.ID, "oracle", t.oracle.Name(), "error", err)
		return nil, err
	}

	res, err := t.mastery.Apply(ctx, s.StudentID, sub.ID, mastery.ProblemRef{
		ProblemID: sel.Problem.ID,
		ClusterID: sel.Cluster.ID,
	}, *ev)
	if err != nil {
		return nil, err
	}

	s.Answered++
	if ev.Correctness >= 1 {
		s.Solved++
	}
	fb := &Feedback{Problem: sel.Problem, Evaluation: ev, Result: res}

	if !res.MasteryAchieved {
		return fb, t.selectNext(ctx, s)
	}

	s.Mastered = append(s.Mastered, sub.ID)
	profile, err := t.mastery.Profile(ctx, s.StudentID)
	if err != nil {
		return fb, err
	}
	next, ok := t.catalog.NextSubtopic(profile.MasteredSet())
	if !ok {
		s.Done = true
		s.Subtopic, s.Current = nil, nil
		fb.Completed = true
		t.log.Info("all subtopics mastered", "session_id", s.ID, "student_id", s.StudentID)
		return fb, nil
	}
	fb.Advanced = next
	return fb, t.enter(ctx, s, next)
}
