package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// problemsFileName is the sibling file holding the question bank when the
// knowledge graph file does not embed problems.
const problemsFileName = "problems.json"

// graphFile mirrors the knowledge graph file layout. The same field names are
// used for JSON and YAML.
type graphFile struct {
	Topics   []topicFile   `json:"topics" yaml:"topics"`
	Problems []problemFile `json:"problems,omitempty" yaml:"problems,omitempty"`
}

type topicFile struct {
	ID        string         `json:"topic_id" yaml:"topic_id"`
	Name      string         `json:"topic_name" yaml:"topic_name"`
	Subtopics []subtopicFile `json:"subtopics" yaml:"subtopics"`
}

type subtopicFile struct {
	ID       string        `json:"subtopic_id" yaml:"subtopic_id"`
	Name     string        `json:"subtopic_name" yaml:"subtopic_name"`
	Clusters []clusterFile `json:"clusters" yaml:"clusters"`
}

type clusterFile struct {
	ID                string        `json:"cluster_id" yaml:"cluster_id"`
	Name              string        `json:"cluster_name" yaml:"cluster_name"`
	Description       string        `json:"description,omitempty" yaml:"description,omitempty"`
	ComplexityLevel   int           `json:"complexity_level" yaml:"complexity_level"`
	LearningObjective string        `json:"learning_objective,omitempty" yaml:"learning_objective,omitempty"`
	Skills            []string      `json:"skills_tested" yaml:"skills_tested"`
	Problems          []problemFile `json:"problems,omitempty" yaml:"problems,omitempty"`
}

type problemFile struct {
	ID           string   `json:"problem_id" yaml:"problem_id"`
	ClusterID    string   `json:"cluster_id,omitempty" yaml:"cluster_id,omitempty"`
	Name         string   `json:"problem_name,omitempty" yaml:"problem_name,omitempty"`
	Description  string   `json:"description" yaml:"description"`
	BriefSummary string   `json:"brief_summary,omitempty" yaml:"brief_summary,omitempty"`
	Difficulty   string   `json:"difficulty" yaml:"difficulty"`
	Concepts     []string `json:"concepts" yaml:"concepts"`
}

// LoadFile reads a catalog from disk. The format is chosen by extension.
// A JSON knowledge graph without inline problems picks up a sibling
// problems.json when one exists.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	gf, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	if format == FormatJSON && len(gf.Problems) == 0 && !hasInlineProblems(gf) {
		sibling := filepath.Join(filepath.Dir(path), problemsFileName)
		extra, err := os.ReadFile(sibling)
		switch {
		case err == nil:
			if err := json.Unmarshal(extra, &gf.Problems); err != nil {
				return nil, fmt.Errorf("parse %s: %w", sibling, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", sibling, err)
		}
	}

	return fromFile(gf)
}

// Parse decodes a catalog from raw bytes.
func Parse(data []byte, format Format) (*Catalog, error) {
	gf, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	return fromFile(gf)
}

func formatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
}

func decode(data []byte, format Format) (*graphFile, error) {
	var gf graphFile
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parse catalog json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parse catalog yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return &gf, nil
}

func hasInlineProblems(gf *graphFile) bool {
	for _, t := range gf.Topics {
		for _, s := range t.Subtopics {
			for _, c := range s.Clusters {
				if len(c.Problems) > 0 {
					return true
				}
			}
		}
	}
	return false
}

// fromFile converts the file layout into the domain tree, attaching
// top-level problems to their clusters by cluster_id.
func fromFile(gf *graphFile) (*Catalog, error) {
	var errs []string
	clusters := make(map[string]*Cluster)

	topics := make([]*Topic, 0, len(gf.Topics))
	for _, tf := range gf.Topics {
		t := &Topic{ID: tf.ID, Name: tf.Name}
		if t.ID == "" {
			t.ID = slug(tf.Name)
		}
		for _, sf := range tf.Subtopics {
			s := &Subtopic{ID: sf.ID, Name: sf.Name, TopicID: t.ID}
			if s.ID == "" {
				s.ID = slug(sf.Name)
			}
			for _, cf := range sf.Clusters {
				cl := &Cluster{
					ID:                cf.ID,
					Name:              cf.Name,
					Description:       cf.Description,
					ComplexityLevel:   cf.ComplexityLevel,
					LearningObjective: cf.LearningObjective,
					Skills:            cf.Skills,
				}
				for _, pf := range cf.Problems {
					p, err := problemFromFile(pf)
					if err != nil {
						errs = append(errs, err.Error())
						continue
					}
					if p.ClusterID == "" {
						p.ClusterID = cl.ID
					}
					cl.Problems = append(cl.Problems, p)
				}
				clusters[cl.ID] = cl
				s.Clusters = append(s.Clusters, cl)
			}
			t.Subtopics = append(t.Subtopics, s)
		}
		topics = append(topics, t)
	}

	for _, pf := range gf.Problems {
		cl, ok := clusters[pf.ClusterID]
		if !ok {
			errs = append(errs, fmt.Sprintf("problem %q references unknown cluster %q", pf.ID, pf.ClusterID))
			continue
		}
		p, err := problemFromFile(pf)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		cl.Problems = append(cl.Problems, p)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog load failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return New(topics)
}

func problemFromFile(pf problemFile) (*Problem, error) {
	d := DifficultyMedium
	if pf.Difficulty != "" {
		var err error
		d, err = ParseDifficulty(pf.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("problem %q: %w", pf.ID, err)
		}
	}
	return &Problem{
		ID:           pf.ID,
		ClusterID:    pf.ClusterID,
		Name:         pf.Name,
		Description:  pf.Description,
		BriefSummary: pf.BriefSummary,
		Difficulty:   d,
		ConceptTags:  pf.Concepts,
	}, nil
}

// slug turns a display name into an id ("INNER JOIN" -> "inner-join").
func slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
