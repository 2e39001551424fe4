package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testTopics() []*Topic {
	return []*Topic{{
		ID:   "joins",
		Name: "Joins",
		Subtopics: []*Subtopic{
			{
				ID:   "inner-join",
				Name: "INNER JOIN",
				Clusters: []*Cluster{
					{ID: "c1", Name: "Basics", Skills: []string{"JOIN operations"}, Problems: []*Problem{
						{ID: "p1", Description: "join two tables", Difficulty: DifficultyEasy},
						{ID: "p2", Description: "join with filter", Difficulty: DifficultyMedium},
					}},
				},
			},
			{ID: "empty", Name: "Empty", Clusters: []*Cluster{{ID: "c2", Name: "Nothing"}}},
			{
				ID:   "self-join",
				Name: "SELF JOIN",
				Clusters: []*Cluster{
					{ID: "c3", Name: "Pairs", Problems: []*Problem{
						{ID: "p3", Description: "pair rows", Difficulty: DifficultyHard},
					}},
				},
			},
		},
	}}
}

func TestDefault_SeedCatalogLoads(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("seed catalog validation failed: %v", err)
	}
	st := c.Stats()
	if st.Topics != 1 || st.Subtopics != 3 {
		t.Errorf("Stats() = %+v, want 1 topic and 3 subtopics", st)
	}
	for _, s := range c.Subtopics() {
		if s.ProblemCount() == 0 {
			t.Errorf("subtopic %q has no problems", s.ID)
		}
		for _, p := range s.Problems() {
			if len(p.ConceptTags) == 0 {
				t.Errorf("problem %q has no concept tags", p.ID)
			}
		}
	}
}

func TestGetSubtopic_IDAndNameAlias(t *testing.T) {
	c, err := New(testTopics())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, key := range []string{"inner-join", "INNER-JOIN", "inner join", " Inner Join "} {
		s, err := c.GetSubtopic(key)
		if err != nil {
			t.Errorf("GetSubtopic(%q) error: %v", key, err)
			continue
		}
		if s.ID != "inner-join" {
			t.Errorf("GetSubtopic(%q).ID = %q", key, s.ID)
		}
		if s.TopicID != "joins" {
			t.Errorf("TopicID = %q, want joins", s.TopicID)
		}
	}

	_, err = c.GetSubtopic("window-functions")
	var unknown *UnknownSubtopicError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSubtopicError, got %v", err)
	}
	if unknown.ID != "window-functions" {
		t.Errorf("ID = %q", unknown.ID)
	}
}

func TestProblem_Lookup(t *testing.T) {
	c, err := New(testTopics())
	if err != nil {
		t.Fatal(err)
	}

	p, cl, err := c.Problem("inner-join", "p2")
	if err != nil {
		t.Fatalf("Problem() error: %v", err)
	}
	if p.ClusterID != "c1" || cl.ID != "c1" {
		t.Errorf("cluster = %q/%q, want c1", p.ClusterID, cl.ID)
	}

	_, _, err = c.Problem("inner-join", "p3")
	var unknown *UnknownProblemError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownProblemError for problem of another subtopic, got %v", err)
	}
}

func TestNextSubtopic_SkipsMasteredAndEmpty(t *testing.T) {
	c, err := New(testTopics())
	if err != nil {
		t.Fatal(err)
	}

	s, ok := c.NextSubtopic(nil)
	if !ok || s.ID != "inner-join" {
		t.Fatalf("NextSubtopic(nil) = %v, %v; want inner-join", s, ok)
	}

	s, ok = c.NextSubtopic(map[string]bool{"inner-join": true})
	if !ok || s.ID != "self-join" {
		t.Fatalf("NextSubtopic = %v, %v; want self-join (empty skipped)", s, ok)
	}

	_, ok = c.NextSubtopic(map[string]bool{"inner-join": true, "self-join": true})
	if ok {
		t.Error("expected no subtopic left")
	}
}

func TestNew_RejectsInvalidTopics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]*Topic)
		want   string
	}{
		{"duplicate problem", func(ts []*Topic) {
			ts[0].Subtopics[2].Clusters[0].Problems[0].ID = "p1"
		}, "duplicate problem"},
		{"duplicate subtopic", func(ts []*Topic) {
			ts[0].Subtopics[1].ID = "Inner-Join"
		}, "duplicate subtopic"},
		{"invalid difficulty", func(ts []*Topic) {
			ts[0].Subtopics[0].Clusters[0].Problems[0].Difficulty = 9
		}, "invalid difficulty"},
		{"empty description", func(ts []*Topic) {
			ts[0].Subtopics[0].Clusters[0].Problems[1].Description = "  "
		}, "empty description"},
		{"wrong cluster", func(ts []*Topic) {
			ts[0].Subtopics[0].Clusters[0].Problems[1].ClusterID = "c3"
		}, "declares cluster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics := testTopics()
			tt.mutate(topics)
			_, err := New(topics)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestNew_EmptyCatalog(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty catalog")
	}
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
topics:
  - topic_name: Joins
    subtopics:
      - subtopic_name: Cross Join
        clusters:
          - cluster_id: cj
            cluster_name: Cartesian products
            skills_tested: [CROSS JOIN]
            problems:
              - problem_id: cj-1
                description: Produce every size and colour combination.
                difficulty: Medium
                concepts: [CROSS JOIN]
`)
	c, err := Parse(data, FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	s, err := c.GetSubtopic("cross-join")
	if err != nil {
		t.Fatalf("slug id lookup failed: %v", err)
	}
	p := s.Problems()[0]
	if p.Difficulty != DifficultyMedium {
		t.Errorf("Difficulty = %v, want medium", p.Difficulty)
	}
	if p.ClusterID != "cj" {
		t.Errorf("ClusterID = %q, want cj", p.ClusterID)
	}
}

func TestParse_BadDifficulty(t *testing.T) {
	data := []byte(`{"topics":[{"topic_id":"t","topic_name":"T","subtopics":[{"subtopic_id":"s","subtopic_name":"S",
"clusters":[{"cluster_id":"c","cluster_name":"C","problems":[{"problem_id":"p","description":"d","difficulty":"brutal"}]}]}]}]}`)
	_, err := Parse(data, FormatJSON)
	if err == nil || !strings.Contains(err.Error(), "brutal") {
		t.Errorf("expected difficulty error, got %v", err)
	}
}

func TestLoadFile_JSONWithSiblingProblems(t *testing.T) {
	dir := t.TempDir()
	graph := `{"topics":[{"topic_id":"t","topic_name":"Joins","subtopics":[
{"subtopic_id":"inner","subtopic_name":"INNER JOIN","clusters":[
{"cluster_id":"c1","cluster_name":"Basics","complexity_level":1,"skills_tested":["JOIN operations"]},
{"cluster_id":"c2","cluster_name":"Empty","complexity_level":2,"skills_tested":[]}]}]}]}`
	problems := `[
{"problem_id":"p1","cluster_id":"c1","description":"List orders with customers.","difficulty":"easy","concepts":["INNER JOIN"]},
{"problem_id":"p2","cluster_id":"c1","description":"Filter joined rows.","difficulty":"hard","concepts":["WHERE clause"]}]`

	graphPath := filepath.Join(dir, "knowledge_graph.json")
	if err := os.WriteFile(graphPath, []byte(graph), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "problems.json"), []byte(problems), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(graphPath)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	s, _ := c.GetSubtopic("inner")
	if len(s.Clusters[0].Problems) != 2 {
		t.Errorf("cluster c1 has %d problems, want 2", len(s.Clusters[0].Problems))
	}
	if len(s.Clusters[1].Problems) != 0 {
		t.Errorf("cluster c2 should be empty")
	}
}

func TestLoadFile_UnknownClusterInProblems(t *testing.T) {
	dir := t.TempDir()
	graph := `{"topics":[{"topic_id":"t","topic_name":"Joins","subtopics":[
{"subtopic_id":"inner","subtopic_name":"INNER JOIN","clusters":[{"cluster_id":"c1","cluster_name":"Basics"}]}]}]}`
	problems := `[{"problem_id":"p1","cluster_id":"nope","description":"x","difficulty":"easy"}]`
	graphPath := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(graphPath, []byte(graph), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "problems.json"), []byte(problems), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(graphPath)
	if err == nil || !strings.Contains(err.Error(), "unknown cluster") {
		t.Errorf("expected unknown cluster error, got %v", err)
	}
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for .toml")
	}
}

func TestDifficulty_TextRoundTrip(t *testing.T) {
	var d Difficulty
	if err := d.UnmarshalText([]byte("HARD")); err != nil {
		t.Fatal(err)
	}
	if d != DifficultyHard {
		t.Errorf("got %v", d)
	}
	if _, err := Difficulty(0).MarshalText(); err == nil {
		t.Error("expected error marshalling zero difficulty")
	}
}
