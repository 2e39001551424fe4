package oracle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/abhisek/sqltutor/internal/concept"
	"github.com/abhisek/sqltutor/internal/mastery"
)

// RuleOracle grades an answer by checking that the SQL constructs implied
// by each concept tag of the problem are present. It needs no network and
// is deterministic, which makes it the offline fallback.
type RuleOracle struct{}

// NewRuleOracle returns the keyword-based oracle.
func NewRuleOracle() *RuleOracle { return &RuleOracle{} }

func (*RuleOracle) Name() string { return "rules" }

// partialUnderstanding is credited to a tag the answer does not show.
const partialUnderstanding = 0.2

func (o *RuleOracle) Evaluate(ctx context.Context, req Request) (*mastery.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Problem == nil {
		return nil, fmt.Errorf("oracle request has no problem")
	}
	if IsNonAnswer(req.Answer) {
		return nonAnswerEvaluation(), nil
	}

	q := parseQuery(req.Answer)
	tags := dedupTags(req.Problem.ConceptTags)
	ev := &mastery.Evaluation{ConceptUnderstanding: make(map[string]float64, len(tags))}

	if !q.has("SELECT") {
		ev.MissingConcepts = tags
		for _, t := range tags {
			ev.ConceptUnderstanding[concept.Normalize(t)] = 0
		}
		ev.Feedback = "That does not look like a SELECT query."
		return ev, nil
	}
	if len(tags) == 0 {
		ev.Correctness = 1
		ev.MasteryProbability = 0.9
		ev.Feedback = "Looks like a valid query."
		return ev, nil
	}

	var shown []string
	for _, t := range tags {
		if q.shows(t) {
			shown = append(shown, t)
			ev.ConceptUnderstanding[concept.Normalize(t)] = 1
			continue
		}
		ev.WeakConcepts = append(ev.WeakConcepts, t)
		ev.ConceptUnderstanding[concept.Normalize(t)] = partialUnderstanding
	}

	ev.Correctness = float64(len(shown)) / float64(len(tags))
	ev.MasteryProbability = 0.9 * ev.Correctness
	if len(ev.WeakConcepts) == 0 {
		ev.Feedback = "Your query uses every construct this question needs."
	} else {
		ev.Feedback = "Check your use of: " + strings.Join(ev.WeakConcepts, ", ") + "."
	}
	if req.Problem.BriefSummary != "" {
		ev.Explanation = req.Problem.BriefSummary
	}
	return ev, nil
}

func dedupTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if !slices.ContainsFunc(out, func(o string) bool { return concept.Equal(o, t) }) {
			out = append(out, t)
		}
	}
	return out
}

// query is an answer split into upper-cased word tokens.
type query struct {
	raw    string
	tokens []string
}

func parseQuery(sql string) query {
	upper := strings.ToUpper(sql)
	return query{
		raw: upper,
		tokens: strings.FieldsFunc(upper, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		}),
	}
}

func (q query) has(tok string) bool { return slices.Contains(q.tokens, tok) }

// phrase reports whether the words appear consecutively.
func (q query) phrase(words ...string) bool {
	for i := 0; i+len(words) <= len(q.tokens); i++ {
		if slices.Equal(q.tokens[i:i+len(words)], words) {
			return true
		}
	}
	return false
}

func (q query) count(tok string) int {
	n := 0
	for _, t := range q.tokens {
		if t == tok {
			n++
		}
	}
	return n
}

var joinQualifiers = map[string]bool{"LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true}

// plainJoin reports an INNER JOIN or an unqualified JOIN.
func (q query) plainJoin() bool {
	for i, t := range q.tokens {
		if t != "JOIN" {
			continue
		}
		if i == 0 || !joinQualifiers[q.tokens[i-1]] {
			return true
		}
	}
	return false
}

// tables returns the identifiers following FROM and JOIN, with the token
// after each one.
func (q query) tables() (names, next []string) {
	for i, t := range q.tokens {
		if (t == "FROM" || t == "JOIN") && i+1 < len(q.tokens) {
			names = append(names, q.tokens[i+1])
			if i+2 < len(q.tokens) {
				next = append(next, q.tokens[i+2])
			} else {
				next = append(next, "")
			}
		}
	}
	return names, next
}

var sqlKeywords = map[string]bool{
	"WHERE": true, "JOIN": true, "LEFT": true, "RIGHT": true, "FULL": true, "INNER": true,
	"OUTER": true, "CROSS": true, "ON": true, "USING": true, "GROUP": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "UNION": true, "SELECT": true, "": true,
}

func (q query) selfJoin() bool {
	names, _ := q.tables()
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			return true
		}
		seen[n] = true
	}
	return false
}

func (q query) aliases() bool {
	if q.has("AS") {
		return true
	}
	_, next := q.tables()
	for _, n := range next {
		if !sqlKeywords[n] {
			return true
		}
	}
	return false
}

// nonEquiJoin looks for a comparison other than equality after an ON.
func (q query) nonEquiJoin() bool {
	i := strings.Index(q.raw, " ON ")
	if i < 0 {
		return false
	}
	cond := q.raw[i+4:]
	if end := strings.Index(cond, " WHERE "); end >= 0 {
		cond = cond[:end]
	}
	return strings.ContainsAny(cond, "<>") || strings.Contains(cond, "!=") || strings.Contains(cond, " BETWEEN ")
}

// rules maps a normalized concept tag to the check that shows it.
var rules = map[string]func(query) bool{
	"join syntax":     func(q query) bool { return q.has("JOIN") && (q.has("ON") || q.has("USING")) },
	"inner join":      func(q query) bool { return q.plainJoin() },
	"left join":       func(q query) bool { return q.phrase("LEFT", "JOIN") || q.phrase("LEFT", "OUTER", "JOIN") },
	"right join":      func(q query) bool { return q.phrase("RIGHT", "JOIN") || q.phrase("RIGHT", "OUTER", "JOIN") },
	"full outer join": func(q query) bool { return q.phrase("FULL", "JOIN") || q.phrase("FULL", "OUTER", "JOIN") },
	"multiple joins":  func(q query) bool { return q.count("JOIN") >= 2 },
	"self join":       query.selfJoin,
	"non-equi join":   query.nonEquiJoin,
	"table aliases":   query.aliases,
	"on clause":       func(q query) bool { return q.has("ON") },
	"where clause":    func(q query) bool { return q.has("WHERE") },
	"group by":        func(q query) bool { return q.phrase("GROUP", "BY") },
	"order by":        func(q query) bool { return q.phrase("ORDER", "BY") },
	"limit":           func(q query) bool { return q.has("LIMIT") || q.has("TOP") || q.phrase("FETCH", "FIRST") },
	"coalesce":        func(q query) bool { return q.has("COALESCE") || q.has("IFNULL") },
	"count aggregate": func(q query) bool { return q.has("COUNT") },
	"sum aggregate":   func(q query) bool { return q.has("SUM") },
	"null handling": func(q query) bool {
		return q.phrase("IS", "NULL") || q.phrase("IS", "NOT", "NULL") || q.has("COALESCE") || q.has("IFNULL")
	},
}

// shows reports whether the query demonstrates the concept. Tags without a
// rule fall back to requiring each significant token of the tag.
func (q query) shows(tag string) bool {
	if rule, ok := rules[concept.Normalize(tag)]; ok {
		return rule(q)
	}
	toks := concept.Tokens(tag)
	if len(toks) == 0 {
		return false
	}
	for _, t := range toks {
		if !q.has(strings.ToUpper(t)) {
			return false
		}
	}
	return true
}
