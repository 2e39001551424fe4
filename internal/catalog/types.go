package catalog

import (
	"fmt"
	"strings"
)

// Difficulty is the ordered difficulty band of a problem.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota + 1
	DifficultyMedium
	DifficultyHard
)

// AllDifficulties returns the bands in ascending order.
func AllDifficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// Valid reports whether d is one of the known bands.
func (d Difficulty) Valid() bool {
	return d >= DifficultyEasy && d <= DifficultyHard
}

// ParseDifficulty parses "easy", "medium" or "hard" (case-insensitive).
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	}
	return 0, fmt.Errorf("unknown difficulty %q", s)
}

func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid difficulty %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(b []byte) error {
	v, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Topic is the top level of the knowledge graph.
type Topic struct {
	ID        string
	Name      string
	Subtopics []*Subtopic
}

// Subtopic is the unit of independent mastery progression.
type Subtopic struct {
	ID       string
	Name     string
	TopicID  string
	Clusters []*Cluster
}

// ProblemCount returns the number of problems across all clusters.
func (s *Subtopic) ProblemCount() int {
	n := 0
	for _, c := range s.Clusters {
		n += len(c.Problems)
	}
	return n
}

// Problems returns every problem of the subtopic in catalog order.
func (s *Subtopic) Problems() []*Problem {
	out := make([]*Problem, 0, s.ProblemCount())
	for _, c := range s.Clusters {
		out = append(out, c.Problems...)
	}
	return out
}

// Cluster groups problems sharing a skill focus.
type Cluster struct {
	ID                string
	Name              string
	Description       string
	ComplexityLevel   int
	LearningObjective string
	Skills            []string
	Problems          []*Problem
}

// Problem is a single practice question.
type Problem struct {
	ID           string
	ClusterID    string
	Name         string
	Description  string
	BriefSummary string
	Difficulty   Difficulty
	ConceptTags  []string
}
