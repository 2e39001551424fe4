package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// profileRepo implements ProfileRepo. Profile headers live in profiles,
// per-subtopic state in subtopic_states and the closed episodes in the
// append-only mastery_episodes table.
type profileRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *profileRepo) Load(ctx context.Context, studentID string) (*ProfileData, error) {
	query, args := builder().
		Select("current_subtopic_id", "mastered", "created_at", "updated_at").
		From(entsql.Table(tableProfiles)).
		Where(entsql.EQ(colStudentID, studentID)).
		Query()

	p := &ProfileData{
		Version:   ProfileDataVersion,
		StudentID: studentID,
		Subtopics: make(map[string]*SubtopicData),
	}
	var mastered []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.CurrentSubtopicID, &mastered, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if err := json.Unmarshal(mastered, &p.Mastered); err != nil {
		return nil, fmt.Errorf("decode mastered list: %w", err)
	}

	if err := r.loadSubtopics(ctx, p); err != nil {
		return nil, err
	}
	if err := r.loadEpisodes(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *profileRepo) loadSubtopics(ctx context.Context, p *ProfileData) error {
	query, args := builder().
		Select(colSubtopic, colData).
		From(entsql.Table(tableSubtopicStates)).
		Where(entsql.EQ(colStudentID, p.StudentID)).
		OrderBy(colID).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query subtopic states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scan subtopic state: %w", err)
		}
		var sd SubtopicData
		if err := json.Unmarshal(data, &sd); err != nil {
			return fmt.Errorf("decode subtopic state %q: %w", id, err)
		}
		p.Subtopics[id] = &sd
	}
	return rows.Err()
}

func (r *profileRepo) loadEpisodes(ctx context.Context, p *ProfileData) error {
	query, args := builder().
		Select(colData).
		From(entsql.Table(tableEpisodes)).
		Where(entsql.EQ(colStudentID, p.StudentID)).
		OrderBy(colSequence).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scan episode: %w", err)
		}
		var ep EpisodeData
		if err := json.Unmarshal(data, &ep); err != nil {
			return fmt.Errorf("decode episode: %w", err)
		}
		p.Episodes = append(p.Episodes, ep)
	}
	return rows.Err()
}

func (r *profileRepo) Commit(ctx context.Context, c *ProfileCommit) error {
	if c.StudentID == "" {
		return errors.New("commit profile: empty student id")
	}

	// Sequence numbers are drawn before the transaction opens so the
	// counter never waits on it.
	var episodeSeq int64
	if c.Episode != nil {
		var err error
		if episodeSeq, err = r.seq.Next(ctx); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := upsertProfile(ctx, tx, c.StudentID, c.CurrentSubtopicID, c.Mastered, c.CreatedAt, c.UpdatedAt); err != nil {
		return err
	}
	if c.Subtopic != nil {
		if err := upsertSubtopic(ctx, tx, c.StudentID, c.Subtopic, c.UpdatedAt); err != nil {
			return err
		}
	}
	if c.Episode != nil {
		if err := insertEpisode(ctx, tx, episodeSeq, c.StudentID, c.Episode); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile: %w", err)
	}
	return nil
}

func (r *profileRepo) Replace(ctx context.Context, p *ProfileData) error {
	if p.StudentID == "" {
		return errors.New("replace profile: empty student id")
	}

	seqs := make([]int64, len(p.Episodes))
	for i := range seqs {
		var err error
		if seqs[i], err = r.seq.Next(ctx); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{tableSubtopicStates, tableEpisodes} {
		query, args := builder().Delete(table).Where(entsql.EQ(colStudentID, p.StudentID)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := upsertProfile(ctx, tx, p.StudentID, p.CurrentSubtopicID, p.Mastered, p.CreatedAt, p.UpdatedAt); err != nil {
		return err
	}
	for _, sd := range p.Subtopics {
		if err := upsertSubtopic(ctx, tx, p.StudentID, sd, p.UpdatedAt); err != nil {
			return err
		}
	}
	for i := range p.Episodes {
		if err := insertEpisode(ctx, tx, seqs[i], p.StudentID, &p.Episodes[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (r *profileRepo) List(ctx context.Context) ([]ProfileSummary, error) {
	query, args := builder().
		Select(colStudentID, "current_subtopic_id", "mastered", "updated_at").
		From(entsql.Table(tableProfiles)).
		OrderBy(colStudentID).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileSummary
	for rows.Next() {
		var ps ProfileSummary
		var mastered []byte
		if err := rows.Scan(&ps.StudentID, &ps.CurrentSubtopicID, &mastered, &ps.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var ids []string
		if err := json.Unmarshal(mastered, &ids); err != nil {
			return nil, fmt.Errorf("decode mastered list: %w", err)
		}
		ps.MasteredCount = len(ids)
		out = append(out, ps)
	}
	return out, rows.Err()
}

func upsertProfile(ctx context.Context, ex execer, studentID, current string, mastered []string, createdAt, updatedAt time.Time) error {
	if mastered == nil {
		mastered = []string{}
	}
	masteredJSON, err := json.Marshal(mastered)
	if err != nil {
		return fmt.Errorf("encode mastered list: %w", err)
	}

	query, args := builder().
		Insert(tableProfiles).
		Columns(colStudentID, "current_subtopic_id", "mastered", "created_at", "updated_at").
		Values(studentID, current, string(masteredJSON), createdAt, updatedAt).
		OnConflict(
			entsql.ConflictColumns(colStudentID),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("current_subtopic_id")
				u.SetExcluded("mastered")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func upsertSubtopic(ctx context.Context, ex execer, studentID string, sd *SubtopicData, updatedAt time.Time) error {
	data, err := json.Marshal(sd)
	if err != nil {
		return fmt.Errorf("encode subtopic state: %w", err)
	}

	query, args := builder().
		Insert(tableSubtopicStates).
		Columns(colStudentID, colSubtopic, "attempt_count", "mastery_score", colData, "updated_at").
		Values(studentID, sd.SubtopicID, sd.AttemptCount, sd.MasteryScore, string(data), updatedAt).
		OnConflict(
			entsql.ConflictColumns(colStudentID, colSubtopic),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save subtopic state %q: %w", sd.SubtopicID, err)
	}
	return nil
}

func insertEpisode(ctx context.Context, ex execer, seq int64, studentID string, ep *EpisodeData) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode episode: %w", err)
	}

	query, args := builder().
		Insert(tableEpisodes).
		Columns(colSequence, colTimestamp, colStudentID, colSubtopic, "final_score", colData).
		Values(seq, ep.CompletedAt, studentID, ep.SubtopicID, ep.FinalScore, string(data)).
		Query()
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save episode: %w", err)
	}
	return nil
}
