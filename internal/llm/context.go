package llm

import "context"

type contextKey string

const (
	purposeKey contextKey = "llm_purpose"
	studentKey contextKey = "llm_student"
)

// Purposes recorded with each request.
const (
	PurposeEvaluate = "evaluate"
	PurposeProbe    = "probe"
)

// WithPurpose labels requests made with ctx.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithStudent tags requests made with ctx with the student they serve.
func WithStudent(ctx context.Context, studentID string) context.Context {
	return context.WithValue(ctx, studentKey, studentID)
}

// StudentFrom returns the id set by WithStudent, or "".
func StudentFrom(ctx context.Context) string {
	v, _ := ctx.Value(studentKey).(string)
	return v
}
