package catalog

import "fmt"

// UnknownSubtopicError indicates a subtopic id that is not in the catalog.
type UnknownSubtopicError struct {
	ID string
}

func (e *UnknownSubtopicError) Error() string {
	return fmt.Sprintf("unknown subtopic %q", e.ID)
}

// EmptyClusterError indicates a subtopic with nothing to select from.
// Callers may recover by moving to a different subtopic.
type EmptyClusterError struct {
	SubtopicID string
}

func (e *EmptyClusterError) Error() string {
	return fmt.Sprintf("subtopic %q has no clusters with problems", e.SubtopicID)
}

// UnknownProblemError indicates a problem id that does not belong to the
// given subtopic, or to the given cluster when ClusterID is set.
type UnknownProblemError struct {
	SubtopicID string
	ProblemID  string
	ClusterID  string
}

func (e *UnknownProblemError) Error() string {
	if e.ClusterID != "" {
		return fmt.Sprintf("problem %q not found in cluster %q of subtopic %q", e.ProblemID, e.ClusterID, e.SubtopicID)
	}
	return fmt.Sprintf("problem %q not found in subtopic %q", e.ProblemID, e.SubtopicID)
}
