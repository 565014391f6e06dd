package rules

import "fmt"

// EvaluationError captures the engine and expression alongside the cause.
type EvaluationError struct {
	Engine string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rules: %s evaluator expr=%q: %v", e.Engine, e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapEvaluationError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	return &EvaluationError{Engine: engine, Expr: expr, Err: err}
}
