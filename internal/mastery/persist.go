package mastery

import (
	"maps"
	"slices"

	"github.com/abhisek/sqltutor/internal/store"
)

// ProfileData exports a profile in the persisted layout.
func (p *Profile) ProfileData() *store.ProfileData {
	data := &store.ProfileData{
		Version:           store.ProfileDataVersion,
		StudentID:         p.StudentID,
		CurrentSubtopicID: p.CurrentSubtopicID,
		Mastered:          slices.Clone(p.Mastered),
		Subtopics:         make(map[string]*store.SubtopicData, len(p.Subtopics)),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if data.Mastered == nil {
		data.Mastered = []string{}
	}
	for id, st := range p.Subtopics {
		data.Subtopics[id] = subtopicToData(st)
	}
	for _, ep := range p.Episodes {
		data.Episodes = append(data.Episodes, episodeToData(&ep))
	}
	return data
}

// profileFromData rebuilds a profile from its persisted layout. States
// that break an invariant are left out of the profile and reported in the
// returned map, keyed by subtopic id.
func profileFromData(data *store.ProfileData) (*Profile, map[string]string) {
	p := &Profile{
		StudentID:         data.StudentID,
		CurrentSubtopicID: data.CurrentSubtopicID,
		Mastered:          slices.Clone(data.Mastered),
		Subtopics:         make(map[string]*SubtopicState, len(data.Subtopics)),
		CreatedAt:         data.CreatedAt,
		UpdatedAt:         data.UpdatedAt,
	}
	corrupt := make(map[string]string)
	for id, sd := range data.Subtopics {
		st := subtopicFromData(sd)
		if st.SubtopicID != id {
			corrupt[id] = "stored under subtopic " + id + " but names " + st.SubtopicID
			continue
		}
		if reason := invariantViolation(st); reason != "" {
			corrupt[id] = reason
			continue
		}
		p.Subtopics[id] = st
	}
	for _, ed := range data.Episodes {
		p.Episodes = append(p.Episodes, episodeFromData(ed))
	}
	return p, corrupt
}

func subtopicToData(st *SubtopicState) *store.SubtopicData {
	sd := &store.SubtopicData{
		SubtopicID:           st.SubtopicID,
		AttemptCount:         st.AttemptCount,
		MasteryScore:         st.MasteryScore,
		ConceptGaps:          slices.Clone(st.ConceptGaps),
		ConceptUnderstanding: maps.Clone(st.ConceptUnderstanding),
		StartedAt:            st.StartedAt,
	}
	for _, wc := range st.WeakConcepts {
		sd.WeakConcepts = append(sd.WeakConcepts, store.WeakConceptData{
			Name:        wc.Name,
			Occurrences: wc.Occurrences,
			Severity:    string(wc.Severity),
			FirstSeen:   wc.FirstSeen,
			LastSeen:    wc.LastSeen,
		})
	}
	for _, a := range st.History {
		sd.History = append(sd.History, attemptToData(a))
	}
	return sd
}

func subtopicFromData(sd *store.SubtopicData) *SubtopicState {
	st := &SubtopicState{
		SubtopicID:           sd.SubtopicID,
		AttemptCount:         sd.AttemptCount,
		MasteryScore:         sd.MasteryScore,
		ConceptGaps:          slices.Clone(sd.ConceptGaps),
		ConceptUnderstanding: maps.Clone(sd.ConceptUnderstanding),
		StartedAt:            sd.StartedAt,
	}
	if st.ConceptUnderstanding == nil {
		st.ConceptUnderstanding = make(map[string]float64)
	}
	for _, wc := range sd.WeakConcepts {
		st.WeakConcepts = append(st.WeakConcepts, WeakConcept{
			Name:        wc.Name,
			Occurrences: wc.Occurrences,
			Severity:    Severity(wc.Severity),
			FirstSeen:   wc.FirstSeen,
			LastSeen:    wc.LastSeen,
		})
	}
	for _, a := range sd.History {
		st.History = append(st.History, attemptFromData(a))
	}
	return st
}

func attemptToData(a Attempt) store.AttemptData {
	return store.AttemptData{
		ID:                   a.ID,
		SubtopicID:           a.SubtopicID,
		ProblemID:            a.ProblemID,
		ClusterID:            a.ClusterID,
		Timestamp:            a.Timestamp,
		Correctness:          a.Evaluation.Correctness,
		MasteryProbability:   a.Evaluation.MasteryProbability,
		WeakConcepts:         slices.Clone(a.Evaluation.WeakConcepts),
		MissingConcepts:      slices.Clone(a.Evaluation.MissingConcepts),
		ConceptUnderstanding: maps.Clone(a.Evaluation.ConceptUnderstanding),
		Feedback:             a.Evaluation.Feedback,
		Explanation:          a.Evaluation.Explanation,
		MasteryAfter:         a.MasteryAfter,
	}
}

func attemptFromData(d store.AttemptData) Attempt {
	return Attempt{
		ID:         d.ID,
		SubtopicID: d.SubtopicID,
		ProblemID:  d.ProblemID,
		ClusterID:  d.ClusterID,
		Timestamp:  d.Timestamp,
		Evaluation: Evaluation{
			Correctness:          d.Correctness,
			MasteryProbability:   d.MasteryProbability,
			WeakConcepts:         slices.Clone(d.WeakConcepts),
			MissingConcepts:      slices.Clone(d.MissingConcepts),
			ConceptUnderstanding: maps.Clone(d.ConceptUnderstanding),
			Feedback:             d.Feedback,
			Explanation:          d.Explanation,
		},
		MasteryAfter: d.MasteryAfter,
	}
}

func episodeToData(ep *Episode) store.EpisodeData {
	ed := store.EpisodeData{
		SubtopicID:  ep.SubtopicID,
		FinalScore:  ep.FinalScore,
		StartedAt:   ep.StartedAt,
		CompletedAt: ep.CompletedAt,
	}
	for _, a := range ep.Attempts {
		ed.Attempts = append(ed.Attempts, attemptToData(a))
	}
	return ed
}

func episodeFromData(ed store.EpisodeData) Episode {
	ep := Episode{
		SubtopicID:  ed.SubtopicID,
		FinalScore:  ed.FinalScore,
		StartedAt:   ed.StartedAt,
		CompletedAt: ed.CompletedAt,
	}
	for _, a := range ed.Attempts {
		ep.Attempts = append(ep.Attempts, attemptFromData(a))
	}
	return ep
}
