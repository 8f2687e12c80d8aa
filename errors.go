package shipwright

import (
	"fmt"
)

// UnknownSymbolError reports a token that is neither in the alphabet nor a
// declared nonterminal. Fatal to the parse attempt; the solver may retry
// within its budget.
type UnknownSymbolError struct {
	Token string
	Index int
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol [%s] at index [%d]", e.Token, e.Index)
}

// ConstraintViolation reports a failed HARD constraint. A routine, high
// volume outcome: candidates carrying one are discarded, not crashed on.
type ConstraintViolation struct {
	Constraint string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("hard constraint [%s] violated", e.Constraint)
}

// FeasibilityExhausted reports that an axiom produced no feasible candidate
// within the retry budget. Surfaced to the generation caller instead of
// retrying forever.
type FeasibilityExhausted struct {
	Axiom   string
	Retries int
}

func (e *FeasibilityExhausted) Error() string {
	return fmt.Sprintf("no feasible candidate for axiom [%s] within [%d] retries", e.Axiom, e.Retries)
}
