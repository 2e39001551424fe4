package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/sqltutor/internal/concept"
	"github.com/abhisek/sqltutor/internal/llm"
	"github.com/abhisek/sqltutor/internal/mastery"
)

// LLMConfig tunes the grading request.
type LLMConfig struct {
	MaxTokens   int
	Temperature float64
}

// DefaultLLMConfig returns the grading defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		MaxTokens:   800,
		Temperature: 0.2,
	}
}

// LLMOracle grades answers with a language model.
type LLMOracle struct {
	provider llm.Provider
	cfg      LLMConfig
}

// NewLLMOracle creates an oracle backed by provider.
func NewLLMOracle(provider llm.Provider, cfg LLMConfig) *LLMOracle {
	return &LLMOracle{provider: provider, cfg: cfg}
}

func (o *LLMOracle) Name() string { return "llm:" + o.provider.Name() }

// evaluationOutput is the raw model reply. Pointers and RawMessage keep
// absent fields distinguishable from zero values.
type evaluationOutput struct {
	Correctness          json.RawMessage     `json:"correctness"`
	WeakConcepts         *[]string           `json:"weak_concepts"`
	MissingConcepts      *[]string           `json:"missing_concepts"`
	ConceptUnderstanding *[]understandingOut `json:"concept_understanding"`
	MasteryProbability   *float64            `json:"mastery_probability"`
	Feedback             string              `json:"feedback"`
	Explanation          string              `json:"explanation"`
}

type understandingOut struct {
	Concept string  `json:"concept"`
	Score   float64 `json:"score"`
}

// Evaluate sends the answer to the model. Provider failures come back as
// *UnavailableError; replies that break the output contract as
// *mastery.OracleContractError.
func (o *LLMOracle) Evaluate(ctx context.Context, req Request) (*mastery.Evaluation, error) {
	if req.Problem == nil {
		return nil, fmt.Errorf("oracle request has no problem")
	}
	if IsNonAnswer(req.Answer) {
		return nonAnswerEvaluation(), nil
	}

	ctx = llm.WithPurpose(ctx, llm.PurposeEvaluate)
	if req.StudentID != "" {
		ctx = llm.WithStudent(ctx, req.StudentID)
	}

	userMsg, err := buildEvaluationMessage(req)
	if err != nil {
		return nil, fmt.Errorf("build evaluation prompt: %w", err)
	}

	resp, err := o.provider.Generate(ctx, llm.Request{
		System:      evaluationSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      EvaluationSchema,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		var invalid *llm.ErrInvalidResponse
		var maxTok *llm.ErrMaxTokensExceeded
		switch {
		case errors.As(err, &invalid):
			return nil, &mastery.OracleContractError{Field: "response", Reason: "does not match the evaluation schema", Err: err}
		case errors.As(err, &maxTok):
			return nil, &mastery.OracleContractError{Field: "response", Reason: "truncated", Err: err}
		}
		return nil, &UnavailableError{Oracle: o.Name(), Err: err}
	}

	return decodeEvaluation(resp.Content)
}

// decodeEvaluation checks the presence of every contract field, then the
// value ranges via mastery.Evaluation.Validate.
func decodeEvaluation(raw json.RawMessage) (*mastery.Evaluation, error) {
	var out evaluationOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &mastery.OracleContractError{Field: "response", Reason: "not a JSON object", Err: err}
	}

	correctness, err := parseCorrectness(out.Correctness)
	if err != nil {
		return nil, err
	}
	switch {
	case out.WeakConcepts == nil:
		return nil, missingField("weak_concepts")
	case out.MissingConcepts == nil:
		return nil, missingField("missing_concepts")
	case out.ConceptUnderstanding == nil:
		return nil, missingField("concept_understanding")
	case out.MasteryProbability == nil:
		return nil, missingField("mastery_probability")
	}

	ev := &mastery.Evaluation{
		Correctness:          correctness,
		WeakConcepts:         *out.WeakConcepts,
		MissingConcepts:      *out.MissingConcepts,
		ConceptUnderstanding: make(map[string]float64, len(*out.ConceptUnderstanding)),
		MasteryProbability:   *out.MasteryProbability,
		Feedback:             strings.TrimSpace(out.Feedback),
		Explanation:          strings.TrimSpace(out.Explanation),
	}
	for _, u := range *out.ConceptUnderstanding {
		ev.ConceptUnderstanding[concept.Normalize(u.Concept)] = u.Score
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// parseCorrectness accepts a number in [0,1] or a boolean.
func parseCorrectness(raw json.RawMessage) (float64, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return 0, missingField("correctness")
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, &mastery.OracleContractError{Field: "correctness", Reason: "neither a number nor a boolean", Err: err}
	}
	return f, nil
}

func missingField(name string) error {
	return &mastery.OracleContractError{Field: name, Reason: "missing"}
}

const evaluationSystemPrompt = `You are an experienced SQL instructor grading a student's answer to a practice question.

Instructions:
- Judge whether the query would return the requested result on a typical schema. Ignore formatting and keyword case.
- correctness is 1.0 for a fully correct query, 0.0 for an unrelated or empty one, partial credit otherwise.
- weak_concepts lists concepts the student used but applied incorrectly.
- missing_concepts lists concepts the question needs that the answer does not use at all.
- Prefer the concept names given in the question's concept list.
- concept_understanding scores each concept you can judge from 0.0 to 1.0.
- mastery_probability is your estimate that the student has mastered the subtopic.
- feedback speaks to the student in at most two sentences. Do not reveal the full solution.
- explanation outlines a correct approach in at most three sentences.`

var evaluationUserTemplate = template.Must(template.New("evaluation").
	Funcs(template.FuncMap{"join": func(s []string) string { return strings.Join(s, ", ") }}).
	Parse(`Subtopic: {{.SubtopicName}}
Question: {{.Problem.Name}}
{{.Problem.Description}}
{{if .Problem.BriefSummary}}Expected approach: {{.Problem.BriefSummary}}
{{end}}Concepts: {{join .Problem.ConceptTags}}
{{if .KnownWeak}}The student has recently struggled with: {{join .KnownWeak}}
{{end}}
Student's answer:
{{.Answer}}
`))

func buildEvaluationMessage(req Request) (string, error) {
	var buf bytes.Buffer
	if err := evaluationUserTemplate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}
