package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// eventRepo implements EventRepo backed by SQLite and the global sequence
// counter.
type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args := builder().
		Insert(tableLLMRequestEvent).
		Columns(colSequence, colTimestamp, "provider", "model", "purpose",
			"input_tokens", "output_tokens", "latency_ms", "success", "error_message").
		Values(seqNum, time.Now().UTC(), data.Provider, data.Model, data.Purpose,
			data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success, data.ErrorMessage).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) AppendMasteryEvent(ctx context.Context, data MasteryEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args := builder().
		Insert(tableMasteryEvents).
		Columns(colSequence, colTimestamp, colStudentID, colSubtopic, "kind",
			"problem_id", "cluster_id", "attempt_id", "correctness",
			"mastery_before", "mastery_after", "attempt_count").
		Values(seqNum, time.Now().UTC(), data.StudentID, data.SubtopicID, data.Kind,
			data.ProblemID, data.ClusterID, data.AttemptID, data.Correctness,
			data.MasteryBefore, data.MasteryAfter, data.AttemptCount).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save mastery event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryMasteryEvents(ctx context.Context, studentID string, opts QueryOpts) ([]MasteryEvent, error) {
	sel := builder().
		Select(colID, colSequence, colTimestamp, colStudentID, colSubtopic, "kind",
			"problem_id", "cluster_id", "attempt_id", "correctness",
			"mastery_before", "mastery_after", "attempt_count").
		From(entsql.Table(tableMasteryEvents)).
		Where(entsql.And(append(opts.predicates(), entsql.EQ(colStudentID, studentID))...)).
		OrderBy(colSequence)
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mastery events: %w", err)
	}
	defer rows.Close()

	var out []MasteryEvent
	for rows.Next() {
		var e MasteryEvent
		if err := rows.Scan(&e.ID, &e.Sequence, &e.CreatedAt, &e.StudentID, &e.SubtopicID, &e.Kind,
			&e.ProblemID, &e.ClusterID, &e.AttemptID, &e.Correctness,
			&e.MasteryBefore, &e.MasteryAfter, &e.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan mastery event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) QueryLLMRequests(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error) {
	sel := builder().
		Select(colID, colSequence, colTimestamp, "provider", "model", "purpose",
			"input_tokens", "output_tokens", "latency_ms", "success", "error_message").
		From(entsql.Table(tableLLMRequestEvent)).
		OrderBy(entsql.Desc(colSequence))
	if preds := opts.predicates(); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM requests: %w", err)
	}
	defer rows.Close()

	var out []LLMRequestEvent
	for rows.Next() {
		var e LLMRequestEvent
		if err := rows.Scan(&e.ID, &e.Sequence, &e.CreatedAt, &e.Provider, &e.Model, &e.Purpose,
			&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &e.Success, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan LLM request: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMUsage, error) {
	query, args := builder().
		Select(
			"provider",
			"model",
			entsql.As(entsql.Count("*"), "calls"),
			entsql.As("SUM(CASE WHEN success THEN 0 ELSE 1 END)", "failures"),
			entsql.As(entsql.Sum("input_tokens"), "input_tokens"),
			entsql.As(entsql.Sum("output_tokens"), "output_tokens"),
			entsql.As(entsql.Sum("latency_ms"), "latency_ms"),
		).
		From(entsql.Table(tableLLMRequestEvent)).
		GroupBy("provider", "model").
		OrderBy("provider", "model").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM usage: %w", err)
	}
	defer rows.Close()

	var out []LLMUsage
	for rows.Next() {
		var u LLMUsage
		if err := rows.Scan(&u.Provider, &u.Model, &u.Calls, &u.Failures,
			&u.InputTokens, &u.OutputTokens, &u.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan LLM usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// predicates converts the sequence and time filters into SQL predicates.
func (o QueryOpts) predicates() []*entsql.Predicate {
	var preds []*entsql.Predicate
	if o.After > 0 {
		preds = append(preds, entsql.GT(colSequence, o.After))
	}
	if o.Before > 0 {
		preds = append(preds, entsql.LT(colSequence, o.Before))
	}
	if !o.From.IsZero() {
		preds = append(preds, entsql.GTE(colTimestamp, o.From))
	}
	if !o.To.IsZero() {
		preds = append(preds, entsql.LTE(colTimestamp, o.To))
	}
	return preds
}
