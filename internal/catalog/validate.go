package catalog

import (
	"fmt"
	"strings"
)

// validateTopics performs the structural checks on a topic tree.
// Returns a combined error describing all problems found, or nil if valid.
func validateTopics(topics []*Topic) error {
	var errs []string

	if len(topics) == 0 {
		errs = append(errs, "catalog has no topics")
	}

	subtopicIDs := make(map[string]bool)
	clusterIDs := make(map[string]bool)
	problemIDs := make(map[string]bool)

	for ti, t := range topics {
		if t == nil {
			errs = append(errs, fmt.Sprintf("topic #%d is nil", ti))
			continue
		}
		if strings.TrimSpace(t.Name) == "" && strings.TrimSpace(t.ID) == "" {
			errs = append(errs, fmt.Sprintf("topic #%d has neither id nor name", ti))
		}

		for _, s := range t.Subtopics {
			if strings.TrimSpace(s.ID) == "" {
				errs = append(errs, fmt.Sprintf("topic %q has a subtopic without id", t.Name))
				continue
			}
			key := lookupKey(s.ID)
			if subtopicIDs[key] {
				errs = append(errs, fmt.Sprintf("duplicate subtopic ID: %q", s.ID))
			}
			subtopicIDs[key] = true

			for _, cl := range s.Clusters {
				if strings.TrimSpace(cl.ID) == "" {
					errs = append(errs, fmt.Sprintf("subtopic %q has a cluster without id", s.ID))
					continue
				}
				if clusterIDs[cl.ID] {
					errs = append(errs, fmt.Sprintf("duplicate cluster ID: %q", cl.ID))
				}
				clusterIDs[cl.ID] = true

				for _, p := range cl.Problems {
					prefix := fmt.Sprintf("cluster %q problem %q", cl.ID, p.ID)
					if strings.TrimSpace(p.ID) == "" {
						errs = append(errs, fmt.Sprintf("cluster %q has a problem without id", cl.ID))
						continue
					}
					if problemIDs[p.ID] {
						errs = append(errs, fmt.Sprintf("duplicate problem ID: %q", p.ID))
					}
					problemIDs[p.ID] = true
					if p.ClusterID != "" && p.ClusterID != cl.ID {
						errs = append(errs, fmt.Sprintf("%s: declares cluster %q", prefix, p.ClusterID))
					}
					if !p.Difficulty.Valid() {
						errs = append(errs, fmt.Sprintf("%s: invalid difficulty %d", prefix, int(p.Difficulty)))
					}
					if strings.TrimSpace(p.Description) == "" {
						errs = append(errs, fmt.Sprintf("%s: empty description", prefix))
					}
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Validate re-checks the catalog structure. Catalogs built with New are
// always valid; this exists for the CLI's validate command.
func (c *Catalog) Validate() error {
	return validateTopics(c.topics)
}
