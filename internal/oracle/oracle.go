// Package oracle turns a student's free-text SQL answer into a structured
// mastery.Evaluation. Two implementations exist: LLMOracle asks a language
// model to grade against a JSON schema, RuleOracle grades offline by the SQL
// constructs each concept tag implies.
package oracle

import (
	"context"
	"strings"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/mastery"
)

// Oracle evaluates one answer. Implementations must return either a
// complete evaluation or an error; they never return partial results.
type Oracle interface {
	Evaluate(ctx context.Context, req Request) (*mastery.Evaluation, error)
	Name() string
}

// Request is everything an oracle needs to grade one answer.
type Request struct {
	StudentID    string
	SubtopicID   string
	SubtopicName string
	Problem      *catalog.Problem
	Answer       string

	// KnownWeak lists the student's current weak concepts for context.
	KnownWeak []string
}

var nonAnswers = map[string]bool{}

func init() {
	for _, a := range []string{
		"", "?", "idk", "skip", "pass", "no idea", "no clue", "not sure",
		"i dont know", "i don't know", "i do not know", "dont know", "don't know",
		"im not sure", "i'm not sure", "give up", "i give up",
	} {
		nonAnswers[a] = true
	}
}

// IsNonAnswer reports whether the answer is an explicit refusal or empty.
func IsNonAnswer(answer string) bool {
	a := strings.ToLower(strings.Join(strings.Fields(answer), " "))
	a = strings.TrimRight(a, ".!")
	return nonAnswers[a]
}

// nonAnswerEvaluation grades a refusal without consulting anything.
func nonAnswerEvaluation() *mastery.Evaluation {
	return &mastery.Evaluation{
		Correctness:          0,
		ConceptUnderstanding: map[string]float64{},
		MasteryProbability:   0,
		Feedback:             "No answer given. Try writing the query even if you are unsure.",
	}
}
