package oracle

import "fmt"

// UnavailableError means the oracle could not produce an evaluation for a
// reason outside the answer itself: the model provider failed, timed out or
// was rate limited. The attempt is not recorded.
type UnavailableError struct {
	Oracle string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle %s unavailable: %v", e.Oracle, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
