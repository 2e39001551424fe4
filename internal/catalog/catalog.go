package catalog

import (
	"slices"
	"strings"
)

// Catalog is the read-only Topic -> Subtopic -> Cluster -> Problem tree
// with precomputed lookup indices. It is built once and never mutated.
type Catalog struct {
	topics    []*Topic
	subtopics []*Subtopic // catalog order
	byKey     map[string]*Subtopic
	problems  map[string]map[string]*Problem // subtopic id -> problem id
	clusters  map[string]*Cluster            // cluster id
}

// New builds a Catalog from topics, validating the structure first.
func New(topics []*Topic) (*Catalog, error) {
	if err := validateTopics(topics); err != nil {
		return nil, err
	}
	return buildCatalog(topics), nil
}

func buildCatalog(topics []*Topic) *Catalog {
	c := &Catalog{
		topics:   topics,
		byKey:    make(map[string]*Subtopic),
		problems: make(map[string]map[string]*Problem),
		clusters: make(map[string]*Cluster),
	}

	for _, t := range topics {
		for _, s := range t.Subtopics {
			s.TopicID = t.ID
			c.subtopics = append(c.subtopics, s)

			// Ids win over names when both collide.
			if key := lookupKey(s.Name); key != "" {
				if _, taken := c.byKey[key]; !taken {
					c.byKey[key] = s
				}
			}
			c.byKey[lookupKey(s.ID)] = s

			idx := make(map[string]*Problem)
			for _, cl := range s.Clusters {
				c.clusters[cl.ID] = cl
				for _, p := range cl.Problems {
					p.ClusterID = cl.ID
					idx[p.ID] = p
				}
			}
			c.problems[s.ID] = idx
		}
	}
	return c
}

func lookupKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GetSubtopic returns the subtopic by id. Names are accepted as aliases and
// matching ignores case.
func (c *Catalog) GetSubtopic(id string) (*Subtopic, error) {
	if s, ok := c.byKey[lookupKey(id)]; ok {
		return s, nil
	}
	return nil, &UnknownSubtopicError{ID: id}
}

// Problem returns a problem and its cluster within a subtopic.
func (c *Catalog) Problem(subtopicID, problemID string) (*Problem, *Cluster, error) {
	s, err := c.GetSubtopic(subtopicID)
	if err != nil {
		return nil, nil, err
	}
	p, ok := c.problems[s.ID][problemID]
	if !ok {
		return nil, nil, &UnknownProblemError{SubtopicID: s.ID, ProblemID: problemID}
	}
	return p, c.clusters[p.ClusterID], nil
}

// Topics returns all topics in catalog order.
func (c *Catalog) Topics() []*Topic {
	return slices.Clone(c.topics)
}

// Subtopics returns all subtopics across topics in catalog order.
func (c *Catalog) Subtopics() []*Subtopic {
	return slices.Clone(c.subtopics)
}

// NextSubtopic returns the first subtopic in catalog order that is not in
// the mastered set and has at least one problem. The boolean is false when
// every subtopic has been mastered.
func (c *Catalog) NextSubtopic(mastered map[string]bool) (*Subtopic, bool) {
	for _, s := range c.subtopics {
		if mastered[s.ID] || s.ProblemCount() == 0 {
			continue
		}
		return s, true
	}
	return nil, false
}

// Stats summarizes the catalog size.
type Stats struct {
	Topics    int
	Subtopics int
	Clusters  int
	Problems  int
}

// Stats returns counts for display.
func (c *Catalog) Stats() Stats {
	st := Stats{Topics: len(c.topics), Subtopics: len(c.subtopics), Clusters: len(c.clusters)}
	for _, idx := range c.problems {
		st.Problems += len(idx)
	}
	return st
}
