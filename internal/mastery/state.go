package mastery

// Status is a subtopic's position in the mastery lifecycle, for display.
type Status string

const (
	StatusNew      Status = "new"
	StatusLearning Status = "learning"
	StatusMastered Status = "mastered"
)

// Status resolves the display status of a subtopic. A mastered subtopic
// stays mastered even when the student practices it again.
func (p *Profile) Status(subtopicID string) Status {
	if p.IsMastered(subtopicID) {
		return StatusMastered
	}
	if st, ok := p.Subtopics[subtopicID]; ok && st.AttemptCount > 0 {
		return StatusLearning
	}
	return StatusNew
}
