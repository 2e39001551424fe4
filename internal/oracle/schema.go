package oracle

import "github.com/abhisek/sqltutor/internal/llm"

// EvaluationSchema is the structured output the grading model must return.
// Every property is required and objects are closed so that strict
// structured-output modes accept it.
var EvaluationSchema = &llm.Schema{
	Name:        "sql-answer-evaluation",
	Description: "Structured grading of a student's SQL answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correctness": map[string]any{
				"type":        []any{"number", "boolean"},
				"description": "How correct the answer is, 0.0 to 1.0, or true/false",
			},
			"weak_concepts": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Concepts the student applied but got wrong",
			},
			"missing_concepts": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Concepts the question needs that the answer does not use at all",
			},
			"concept_understanding": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"concept": map[string]any{"type": "string"},
						"score":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
					},
					"required":             []any{"concept", "score"},
					"additionalProperties": false,
				},
				"description": "Per-concept understanding, 0.0 to 1.0",
			},
			"mastery_probability": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "Probability the student has mastered the subtopic",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "One or two sentences addressed to the student",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "A short explanation of a correct approach",
			},
		},
		"required": []any{
			"correctness", "weak_concepts", "missing_concepts",
			"concept_understanding", "mastery_probability", "feedback", "explanation",
		},
		"additionalProperties": false,
	},
}
