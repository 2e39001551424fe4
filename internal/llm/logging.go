package llm

import (
	"context"
	"time"

	"github.com/abhisek/sqltutor/internal/logger"
	"github.com/abhisek/sqltutor/internal/store"
)

// LoggingProvider records every call as an llm_request event and a log
// line. Recording failures never fail the call.
type LoggingProvider struct {
	inner  Provider
	events store.EventRepo
	log    *logger.Logger
	now    func() time.Time
}

// WithLogging wraps p. events may be nil.
func WithLogging(p Provider, events store.EventRepo, log *logger.Logger) Provider {
	return &LoggingProvider{inner: p, events: events, log: logger.OrNop(log), now: time.Now}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := l.now()
	resp, err := l.inner.Generate(ctx, req)
	latency := l.now().Sub(start)

	data := store.LLMRequestEventData{
		Provider:  l.inner.Name(),
		Model:     l.inner.ModelID(),
		Purpose:   PurposeFrom(ctx),
		LatencyMs: latency.Milliseconds(),
		Success:   err == nil,
	}
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			data.Model = resp.Model
		}
	}

	kv := []any{
		"provider", data.Provider,
		"model", data.Model,
		"purpose", data.Purpose,
		"latency_ms", data.LatencyMs,
		"input_tokens", data.InputTokens,
		"output_tokens", data.OutputTokens,
	}
	if student := StudentFrom(ctx); student != "" {
		kv = append(kv, "student_id", student)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
		l.log.Warn("llm request failed", append(kv, "error", err)...)
	} else {
		l.log.Debug("llm request", kv...)
	}

	if l.events != nil {
		// The caller's context may already be done; the record is still wanted.
		if logErr := l.events.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
			l.log.Warn("failed to record llm request", "error", logErr)
		}
	}
	return resp, err
}

func (l *LoggingProvider) Name() string    { return l.inner.Name() }
func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }
