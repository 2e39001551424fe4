package selector

import (
	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/concept"
)

const (
	weakWeight  = 3
	skillWeight = 1
)

// ClusterCoverage counts the priority concepts that fuzzy-match at least
// one of the cluster's skills.
func ClusterCoverage(priorities []Priority, c *catalog.Cluster) int {
	return len(covered(priorities, c))
}

func covered(priorities []Priority, c *catalog.Cluster) []string {
	var out []string
	for _, p := range priorities {
		for _, skill := range c.Skills {
			if concept.FuzzyMatch(p.Concept, skill) {
				out = append(out, p.Concept)
				break
			}
		}
	}
	return out
}

// ProblemScore breaks down how well a problem targets the priorities.
type ProblemScore struct {
	WeakCoverage  int
	SkillCoverage int
	Total         int
}

// ScoreProblem rates a problem within its cluster. Weak-origin priority
// concepts count when they match a concept tag or appear in the problem
// text; cluster skills count when they match a concept tag. Gap-origin
// priorities only influence cluster choice.
func ScoreProblem(priorities []Priority, c *catalog.Cluster, p *catalog.Problem) ProblemScore {
	var s ProblemScore
	text := p.Description + "\n" + p.BriefSummary
	for _, pr := range priorities {
		if pr.Origin != OriginWeak {
			continue
		}
		if matchesAnyTag(pr.Concept, p.ConceptTags) || concept.Contains(text, pr.Concept) {
			s.WeakCoverage++
		}
	}
	for _, skill := range c.Skills {
		if matchesAnyTag(skill, p.ConceptTags) {
			s.SkillCoverage++
		}
	}
	s.Total = s.WeakCoverage*weakWeight + s.SkillCoverage*skillWeight
	return s
}

func matchesAnyTag(name string, tags []string) bool {
	for _, tag := range tags {
		if concept.FuzzyMatch(name, tag) {
			return true
		}
	}
	return false
}
