package mastery

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks the evaluation against the oracle output contract.
// It never clamps: an out-of-range value is an error.
func (e Evaluation) Validate() error {
	if err := checkUnit("correctness", e.Correctness); err != nil {
		return err
	}
	if err := checkUnit("mastery_probability", e.MasteryProbability); err != nil {
		return err
	}
	for i, c := range e.WeakConcepts {
		if strings.TrimSpace(c) == "" {
			return &OracleContractError{Field: fmt.Sprintf("weak_concepts[%d]", i), Reason: "empty concept name"}
		}
	}
	for i, c := range e.MissingConcepts {
		if strings.TrimSpace(c) == "" {
			return &OracleContractError{Field: fmt.Sprintf("missing_concepts[%d]", i), Reason: "empty concept name"}
		}
	}
	for c, v := range e.ConceptUnderstanding {
		if strings.TrimSpace(c) == "" {
			return &OracleContractError{Field: "concept_understanding", Reason: "empty concept name"}
		}
		if err := checkUnit(fmt.Sprintf("concept_understanding[%q]", c), v); err != nil {
			return err
		}
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &OracleContractError{Field: field, Reason: "not a finite number"}
	}
	if v < 0 || v > 1 {
		return &OracleContractError{Field: field, Reason: fmt.Sprintf("%v outside [0,1]", v)}
	}
	return nil
}
