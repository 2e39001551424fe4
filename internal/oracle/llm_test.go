package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/sqltutor/internal/catalog"
	"github.com/abhisek/sqltutor/internal/llm"
	"github.com/abhisek/sqltutor/internal/mastery"
)

func customersWithoutOrders() *catalog.Problem {
	return &catalog.Problem{
		ID:           "oj-001",
		ClusterID:    "oj-left",
		Name:         "Customers without orders",
		Description:  "List the names of customers who have never placed an order.",
		BriefSummary: "LEFT JOIN with an IS NULL filter.",
		Difficulty:   catalog.DifficultyEasy,
		ConceptTags:  []string{"LEFT JOIN", "NULL handling"},
	}
}

func validReply() map[string]any {
	return map[string]any{
		"correctness":      0.5,
		"weak_concepts":    []string{"NULL handling"},
		"missing_concepts": []string{},
		"concept_understanding": []map[string]any{
			{"concept": "LEFT JOIN", "score": 0.9},
			{"concept": "  NULL   handling ", "score": 0.3},
		},
		"mastery_probability": 0.4,
		"feedback":            " Close. ",
		"explanation":         "Filter on the right table key being NULL.",
	}
}

func request(answer string) Request {
	return Request{
		StudentID:    "s-1",
		SubtopicID:   "outer-join",
		SubtopicName: "OUTER JOIN",
		Problem:      customersWithoutOrders(),
		Answer:       answer,
		KnownWeak:    []string{"ON clause"},
	}
}

func TestLLMOracle_Evaluate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(validReply()))
	o := NewLLMOracle(mock, DefaultLLMConfig())

	ev, err := o.Evaluate(context.Background(), request("SELECT c.name FROM customers c LEFT JOIN orders o ON o.customer_id = c.id"))
	require.NoError(t, err)

	assert.Equal(t, 0.5, ev.Correctness)
	assert.Equal(t, []string{"NULL handling"}, ev.WeakConcepts)
	assert.Empty(t, ev.MissingConcepts)
	assert.Equal(t, map[string]float64{"left join": 0.9, "null handling": 0.3}, ev.ConceptUnderstanding)
	assert.Equal(t, 0.4, ev.MasteryProbability)
	assert.Equal(t, "Close.", ev.Feedback)

	require.Equal(t, 1, mock.CallCount())
	call := mock.Calls[0]
	assert.Equal(t, EvaluationSchema, call.Schema)
	prompt := call.Messages[0].Content
	assert.Contains(t, prompt, "Customers without orders")
	assert.Contains(t, prompt, "Concepts: LEFT JOIN, NULL handling")
	assert.Contains(t, prompt, "recently struggled with: ON clause")
	assert.Contains(t, prompt, "LEFT JOIN orders o")
}

func TestLLMOracle_BooleanCorrectness(t *testing.T) {
	for _, tc := range []struct {
		value any
		want  float64
	}{{true, 1}, {false, 0}} {
		reply := validReply()
		reply["correctness"] = tc.value
		o := NewLLMOracle(llm.NewMockProvider(llm.MockJSON(reply)), DefaultLLMConfig())

		ev, err := o.Evaluate(context.Background(), request("SELECT 1"))
		require.NoError(t, err)
		assert.Equal(t, tc.want, ev.Correctness)
	}
}

func TestLLMOracle_NonAnswerSkipsModel(t *testing.T) {
	mock := llm.NewMockProvider()
	o := NewLLMOracle(mock, DefaultLLMConfig())

	for _, answer := range []string{"", "  ", "idk", "I don't know.", "SKIP"} {
		ev, err := o.Evaluate(context.Background(), request(answer))
		require.NoError(t, err, answer)
		assert.Zero(t, ev.Correctness)
		assert.Empty(t, ev.WeakConcepts)
		assert.Empty(t, ev.MissingConcepts)
	}
	assert.Zero(t, mock.CallCount())
}

func TestLLMOracle_SchemaViolationIsContractError(t *testing.T) {
	reply := validReply()
	delete(reply, "mastery_probability")
	o := NewLLMOracle(llm.NewMockProvider(llm.MockJSON(reply)), DefaultLLMConfig())

	_, err := o.Evaluate(context.Background(), request("SELECT 1"))
	var contract *mastery.OracleContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, "response", contract.Field)
}

func TestLLMOracle_TruncatedIsContractError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"correct`), Stop: llm.StopMaxTokens})
	o := NewLLMOracle(mock, DefaultLLMConfig())

	_, err := o.Evaluate(context.Background(), request("SELECT 1"))
	var contract *mastery.OracleContractError
	require.ErrorAs(t, err, &contract)
}

func TestLLMOracle_ProviderFailureIsUnavailable(t *testing.T) {
	cause := &llm.ErrRateLimit{Err: errors.New("429")}
	o := NewLLMOracle(llm.NewMockProvider(llm.MockResponse{Err: cause}), DefaultLLMConfig())

	_, err := o.Evaluate(context.Background(), request("SELECT 1"))
	var unavail *UnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.Equal(t, "llm:mock", unavail.Oracle)

	var rl *llm.ErrRateLimit
	assert.ErrorAs(t, err, &rl)
}

func TestLLMOracle_RequiresProblem(t *testing.T) {
	o := NewLLMOracle(llm.NewMockProvider(), DefaultLLMConfig())
	_, err := o.Evaluate(context.Background(), Request{Answer: "SELECT 1"})
	require.Error(t, err)
}

func TestDecodeEvaluation_MissingFields(t *testing.T) {
	for _, field := range []string{"correctness", "weak_concepts", "missing_concepts", "concept_understanding", "mastery_probability"} {
		t.Run(field, func(t *testing.T) {
			reply := validReply()
			delete(reply, field)
			raw, err := json.Marshal(reply)
			require.NoError(t, err)

			_, err = decodeEvaluation(raw)
			var contract *mastery.OracleContractError
			require.ErrorAs(t, err, &contract)
			assert.Equal(t, field, contract.Field)
			assert.Equal(t, "missing", contract.Reason)
		})
	}
}

func TestDecodeEvaluation_OutOfRange(t *testing.T) {
	reply := validReply()
	reply["correctness"] = 1.2
	raw, err := json.Marshal(reply)
	require.NoError(t, err)

	_, err = decodeEvaluation(raw)
	var contract *mastery.OracleContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, "correctness", contract.Field)
}

func TestDecodeEvaluation_BadCorrectnessType(t *testing.T) {
	reply := validReply()
	reply["correctness"] = "mostly"
	raw, err := json.Marshal(reply)
	require.NoError(t, err)

	_, err = decodeEvaluation(raw)
	var contract *mastery.OracleContractError
	require.ErrorAs(t, err, &contract)
	assert.Contains(t, contract.Reason, "neither")
}

func TestIsNonAnswer(t *testing.T) {
	tests := map[string]bool{
		"":                true,
		"idk":             true,
		"  I  Don't Know": true,
		"skip!":           true,
		"SELECT 1":        false,
		"idk SELECT *":    false,
	}
	for in, want := range tests {
		if got := IsNonAnswer(in); got != want {
			t.Errorf("IsNonAnswer(%q) = %v, want %v", in, got, want)
		}
	}
}
