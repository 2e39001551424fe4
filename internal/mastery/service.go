package mastery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/logger"
	"github.com/abhisek/sqltutor/internal/store"
)

// Catalog is the view of the knowledge catalog the service checks subtopic
// and problem ids against. *catalog.Catalog implements it.
type Catalog interface {
	GetSubtopic(id string) (*catalog.Subtopic, error)
	Problem(subtopicID, problemID string) (*catalog.Problem, *catalog.Cluster, error)
	Subtopics() []*catalog.Subtopic
}

// Service owns every student's mastery state. It serializes updates per
// (student, subtopic), persists before committing in memory, and hands out
// deep copies only. State exists only for subtopics of its catalog.
type Service struct {
	catalog Catalog
	repo    store.ProfileRepo
	events store.EventRepo
	log    *logger.Logger

	now   func() time.Time
	newID func() string

	// mu guards profiles, corrupt and every field of a cached *Profile.
	mu       sync.Mutex
	profiles map[string]*Profile
	corrupt  map[string]string // subtopicKey -> reason

	keys *keyedMutex
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a mastery service over cat, which must not be nil.
// repo and events may be nil, in which case state lives in memory only and
// no events are recorded.
func NewService(cat Catalog, repo store.ProfileRepo, events store.EventRepo, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		catalog:  cat,
		repo:     repo,
		events:   events,
		log:      logger.OrNop(log),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		profiles: make(map[string]*Profile),
		corrupt:  make(map[string]string),
		keys:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns a copy of the student's profile, loading it from the
// repository or creating an empty one on first use.
func (s *Service) Profile(ctx context.Context, studentID string) (*Profile, error) {
	if err := checkStudentID(studentID); err != nil {
		return nil, err
	}
	unlock := s.keys.Lock(studentID)
	defer unlock()

	p, err := s.loadProfile(ctx, studentID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.Clone(), nil
}

// State returns a copy of the student's state for a subtopic. A subtopic
// never attempted yields a zeroed state.
func (s *Service) State(ctx context.Context, studentID, subtopicID string) (*SubtopicState, error) {
	if err := checkStudentID(studentID); err != nil {
		return nil, err
	}
	subtopicID, err := s.subtopicID(subtopicID)
	if err != nil {
		return nil, err
	}
	unlock := s.keys.Lock(subtopicKey(studentID, subtopicID))
	defer unlock()

	st, err := s.currentState(ctx, studentID, subtopicID)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Apply folds an evaluation into the student's subtopic state. The subtopic
// and the referenced problem must exist in the catalog. The new state is
// persisted before it becomes visible; on any error the committed state is
// unchanged.
func (s *Service) Apply(ctx context.Context, studentID, subtopicID string, ref ProblemRef, ev Evaluation) (*UpdateResult, error) {
	if err := checkStudentID(studentID); err != nil {
		return nil, err
	}
	subtopicID, err := s.subtopicID(subtopicID)
	if err != nil {
		return nil, err
	}
	if ref, err = s.problemRef(subtopicID, ref); err != nil {
		return nil, err
	}
	unlock := s.keys.Lock(subtopicKey(studentID, subtopicID))
	defer unlock()

	current, err := s.currentState(ctx, studentID, subtopicID)
	if err != nil {
		return nil, err
	}

	if ref.AttemptID == "" {
		ref.AttemptID = s.newID()
	}
	now := s.now()
	res, err := ApplyEvaluation(current, ev, ref, now)
	if err != nil {
		var ce *CorruptStateError
		if errors.As(err, &ce) {
			ce.StudentID = studentID
		}
		return nil, err
	}

	if err := s.commit(ctx, studentID, res, now); err != nil {
		return nil, err
	}

	attemptCount := res.State.AttemptCount
	if res.Episode != nil {
		attemptCount = len(res.Episode.Attempts)
	}
	s.log.Info("mastery updated",
		"student_id", studentID,
		"subtopic_id", subtopicID,
		"problem_id", ref.ProblemID,
		"attempt_count", attemptCount,
		"score", res.Attempt.MasteryAfter,
	)
	s.recordEvent(ctx, store.MasteryEventData{
		StudentID:     studentID,
		SubtopicID:    subtopicID,
		Kind:          store.MasteryEventAttempt,
		ProblemID:     ref.ProblemID,
		ClusterID:     ref.ClusterID,
		AttemptID:     res.Attempt.ID,
		Correctness:   ev.Correctness,
		MasteryBefore: res.MasteryBefore,
		MasteryAfter:  res.Attempt.MasteryAfter,
		AttemptCount:  attemptCount,
	})
	if res.MasteryAchieved {
		s.log.Info("mastery achieved",
			"student_id", studentID,
			"subtopic_id", subtopicID,
			"attempts", len(res.Episode.Attempts),
			"score", res.Episode.FinalScore,
		)
		s.recordEvent(ctx, store.MasteryEventData{
			StudentID:    studentID,
			SubtopicID:   subtopicID,
			Kind:         store.MasteryEventAchieved,
			ProblemID:    ref.ProblemID,
			ClusterID:    ref.ClusterID,
			AttemptID:    res.Attempt.ID,
			MasteryAfter: res.Episode.FinalScore,
			AttemptCount: len(res.Episode.Attempts),
		})
	}

	return &UpdateResult{
		State:           res.State.Clone(),
		Attempt:         res.Attempt,
		MasteryBefore:   res.MasteryBefore,
		MasteryAchieved: res.MasteryAchieved,
		Episode:         res.Episode,
	}, nil
}

// commit persists the result and then swaps it into the cached profile.
func (s *Service) commit(ctx context.Context, studentID string, res *UpdateResult, now time.Time) error {
	unlock := s.keys.Lock(studentID)
	defer unlock()

	p, err := s.loadProfile(ctx, studentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	mastered := slices.Clone(p.Mastered)
	createdAt := p.CreatedAt
	current := p.CurrentSubtopicID
	s.mu.Unlock()

	subtopicID := res.State.SubtopicID
	if res.MasteryAchieved && !slices.Contains(mastered, subtopicID) {
		mastered = append(mastered, subtopicID)
	}

	if s.repo != nil {
		c := &store.ProfileCommit{
			StudentID:         studentID,
			CurrentSubtopicID: current,
			Mastered:          mastered,
			CreatedAt:         createdAt,
			UpdatedAt:         now,
			Subtopic:          subtopicToData(res.State),
		}
		if res.Episode != nil {
			ed := episodeToData(res.Episode)
			c.Episode = &ed
		}
		if err := s.repo.Commit(ctx, c); err != nil {
			return fmt.Errorf("persist mastery state: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.Subtopics[subtopicID] = res.State.Clone()
	p.Mastered = mastered
	p.UpdatedAt = now
	if res.Episode != nil {
		p.Episodes = append(p.Episodes, Episode{
			SubtopicID:  res.Episode.SubtopicID,
			Attempts:    cloneAttempts(res.Episode.Attempts),
			FinalScore:  res.Episode.FinalScore,
			StartedAt:   res.Episode.StartedAt,
			CompletedAt: res.Episode.CompletedAt,
		})
	}
	return nil
}

// SetCurrentSubtopic records which subtopic the student is working on.
func (s *Service) SetCurrentSubtopic(ctx context.Context, studentID, subtopicID string) error {
	if err := checkStudentID(studentID); err != nil {
		return err
	}
	subtopicID, err := s.subtopicID(subtopicID)
	if err != nil {
		return err
	}
	unlock := s.keys.Lock(studentID)
	defer unlock()

	p, err := s.loadProfile(ctx, studentID)
	if err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	c := &store.ProfileCommit{
		StudentID:         studentID,
		CurrentSubtopicID: subtopicID,
		Mastered:          slices.Clone(p.Mastered),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         now,
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Commit(ctx, c); err != nil {
			return fmt.Errorf("persist current subtopic: %w", err)
		}
	}

	s.mu.Lock()
	p.CurrentSubtopicID = subtopicID
	p.UpdatedAt = now
	s.mu.Unlock()
	return nil
}

// ResetSubtopic restarts a subtopic from a zeroed state. It also repairs
// a state that failed to load. The mastered list and episodes are kept.
func (s *Service) ResetSubtopic(ctx context.Context, studentID, subtopicID string) error {
	if err := checkStudentID(studentID); err != nil {
		return err
	}
	subtopicID, err := s.subtopicID(subtopicID)
	if err != nil {
		return err
	}
	key := subtopicKey(studentID, subtopicID)
	unlockSubtopic := s.keys.Lock(key)
	defer unlockSubtopic()
	unlock := s.keys.Lock(studentID)
	defer unlock()

	p, err := s.loadProfile(ctx, studentID)
	if err != nil {
		return err
	}

	now := s.now()
	fresh := NewSubtopicState(subtopicID, now)

	s.mu.Lock()
	var before float64
	if st, ok := p.Subtopics[subtopicID]; ok {
		before = st.MasteryScore
	}
	c := &store.ProfileCommit{
		StudentID:         studentID,
		CurrentSubtopicID: p.CurrentSubtopicID,
		Mastered:          slices.Clone(p.Mastered),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         now,
		Subtopic:          subtopicToData(fresh),
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Commit(ctx, c); err != nil {
			return fmt.Errorf("persist reset: %w", err)
		}
	}

	s.mu.Lock()
	p.Subtopics[subtopicID] = fresh
	p.UpdatedAt = now
	delete(s.corrupt, key)
	s.mu.Unlock()

	s.log.Info("subtopic reset", "student_id", studentID, "subtopic_id", subtopicID)
	s.recordEvent(ctx, store.MasteryEventData{
		StudentID:     studentID,
		SubtopicID:    subtopicID,
		Kind:          store.MasteryEventReset,
		MasteryBefore: before,
	})
	return nil
}

// ExportProfile returns the student's profile in the persisted layout.
func (s *Service) ExportProfile(ctx context.Context, studentID string) (*store.ProfileData, error) {
	p, err := s.Profile(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return p.ProfileData(), nil
}

// ImportProfile replaces everything known about data's student. The
// document is rejected as a whole if any subtopic state is corrupt or names
// a subtopic outside the catalog.
func (s *Service) ImportProfile(ctx context.Context, data *store.ProfileData) error {
	if data == nil {
		return errors.New("import profile: nil document")
	}
	if data.Version != store.ProfileDataVersion {
		return fmt.Errorf("import profile: unsupported version %d", data.Version)
	}
	if err := checkStudentID(data.StudentID); err != nil {
		return err
	}

	for _, id := range slices.Sorted(maps.Keys(data.Subtopics)) {
		if err := s.knownSubtopic(id); err != nil {
			return err
		}
	}
	if id := data.CurrentSubtopicID; id != "" {
		if err := s.knownSubtopic(id); err != nil {
			return err
		}
	}

	p, corrupt := profileFromData(data)
	if len(corrupt) > 0 {
		ids := slices.Sorted(maps.Keys(corrupt))
		return &CorruptStateError{StudentID: data.StudentID, SubtopicID: ids[0], Reason: corrupt[ids[0]]}
	}

	// Subtopic keys before the student key, as in Apply and ResetSubtopic.
	for _, sub := range s.catalog.Subtopics() {
		unlockSubtopic := s.keys.Lock(subtopicKey(data.StudentID, sub.ID))
		defer unlockSubtopic()
	}
	unlock := s.keys.Lock(data.StudentID)
	defer unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if s.repo != nil {
		if err := s.repo.Replace(ctx, p.ProfileData()); err != nil {
			return fmt.Errorf("persist imported profile: %w", err)
		}
	}

	s.mu.Lock()
	s.profiles[data.StudentID] = p
	prefix := data.StudentID + "\x00"
	for key := range s.corrupt {
		if strings.HasPrefix(key, prefix) {
			delete(s.corrupt, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// subtopicID resolves an id or name to the catalog's subtopic id.
func (s *Service) subtopicID(id string) (string, error) {
	sub, err := s.catalog.GetSubtopic(id)
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

// knownSubtopic accepts only exact catalog ids, as stored documents use.
func (s *Service) knownSubtopic(id string) error {
	sub, err := s.catalog.GetSubtopic(id)
	if err != nil {
		return err
	}
	if sub.ID != id {
		return &catalog.UnknownSubtopicError{ID: id}
	}
	return nil
}

// problemRef checks that ref names a problem of the subtopic, and a cluster
// matching that problem when one is given. The cluster is filled in when
// empty.
func (s *Service) problemRef(subtopicID string, ref ProblemRef) (ProblemRef, error) {
	p, c, err := s.catalog.Problem(subtopicID, ref.ProblemID)
	if err != nil {
		return ref, err
	}
	clusterID := p.ClusterID
	if c != nil {
		clusterID = c.ID
	}
	if ref.ClusterID != "" && ref.ClusterID != clusterID {
		return ref, &catalog.UnknownProblemError{SubtopicID: subtopicID, ProblemID: ref.ProblemID, ClusterID: ref.ClusterID}
	}
	ref.ClusterID = clusterID
	return ref, nil
}

// currentState returns the cached state for a subtopic, creating a zeroed
// one when absent. The caller must hold the subtopic key.
func (s *Service) currentState(ctx context.Context, studentID, subtopicID string) (*SubtopicState, error) {
	if subtopicID == "" {
		return nil, errors.New("empty subtopic id")
	}

	unlock := s.keys.Lock(studentID)
	p, err := s.loadProfile(ctx, studentID)
	unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reason, bad := s.corrupt[subtopicKey(studentID, subtopicID)]; bad {
		return nil, &CorruptStateError{StudentID: studentID, SubtopicID: subtopicID, Reason: reason}
	}
	st, ok := p.Subtopics[subtopicID]
	if !ok {
		st = NewSubtopicState(subtopicID, s.now())
		p.Subtopics[subtopicID] = st
	}
	return st.Clone(), nil
}

// loadProfile returns the cached profile, loading or creating it first.
// The caller must hold the student key.
func (s *Service) loadProfile(ctx context.Context, studentID string) (*Profile, error) {
	s.mu.Lock()
	p, ok := s.profiles[studentID]
	s.mu.Unlock()
	if ok {
		return p, nil
	}

	var corrupt map[string]string
	if s.repo != nil {
		data, err := s.repo.Load(ctx, studentID)
		if err != nil {
			return nil, fmt.Errorf("load profile %q: %w", studentID, err)
		}
		if data != nil {
			p, corrupt = profileFromData(data)
		}
	}
	if p == nil {
		p = newProfile(studentID, s.now())
	}

	for id, reason := range corrupt {
		s.log.Warn("refusing corrupt subtopic state",
			"student_id", studentID,
			"subtopic_id", id,
			"reason", reason,
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[studentID] = p
	for id, reason := range corrupt {
		s.corrupt[subtopicKey(studentID, id)] = reason
	}
	return p, nil
}

func (s *Service) recordEvent(ctx context.Context, data store.MasteryEventData) {
	if s.events == nil {
		return
	}
	if err := s.events.AppendMasteryEvent(ctx, data); err != nil {
		s.log.Warn("failed to record mastery event",
			"student_id", data.StudentID,
			"subtopic_id", data.SubtopicID,
			"kind", data.Kind,
			"error", err,
		)
	}
}

func checkStudentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty student id")
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("invalid student id %q", id)
	}
	return nil
}
