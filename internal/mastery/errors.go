package mastery

import (
	"errors"
	"fmt"
)

// OracleContractError indicates an evaluation that violates the oracle
// output contract: a missing field or an out-of-range value. The update is
// aborted and no state changes.
type OracleContractError struct {
	Field  string
	Reason string
	Err    error
}

func (e *OracleContractError) Error() string {
	msg := fmt.Sprintf("oracle contract violation: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OracleContractError) Unwrap() error { return e.Err }

// CorruptStateError indicates a persisted subtopic state that violates the
// state invariants. The state is refused until it is reset.
type CorruptStateError struct {
	StudentID  string
	SubtopicID string
	Reason     string
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt mastery state for student %q subtopic %q: %s", e.StudentID, e.SubtopicID, e.Reason)
}

// IsCorrupt reports whether err is or wraps a CorruptStateError.
func IsCorrupt(err error) bool {
	var ce *CorruptStateError
	return errors.As(err, &ce)
}
