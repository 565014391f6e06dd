package rules

import (
	"fmt"

	"github.com/roach88/approval/internal/ir"
)

// Evaluator compiles expressions for one engine.
type Evaluator interface {
	Name() string
	Compile(expression string) (Program, error)
}

// Program is a compiled boolean expression.
type Program interface {
	Eval(env Env) (bool, error)
}

// EvaluatorFor returns the evaluator for engine. An empty engine selects expr.
func EvaluatorFor(engine string) (Evaluator, error) {
	switch engine {
	case "", ir.RuleEngineExpr:
		return NewExprEvaluator(), nil
	case ir.RuleEngineCEL:
		return NewCELEvaluator(), nil
	default:
		return nil, fmt.Errorf("rules: unknown engine %q", engine)
	}
}

// Rule is a compiled RuleSpec.
type Rule struct {
	Name     string
	Decision ir.Decision
	Engine   string
	Expr     string

	program Program
}

// Compile validates and compiles spec.
func Compile(spec ir.RuleSpec) (*Rule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("rules: rule name must not be empty")
	}
	if spec.Decision != ir.DecisionApprove && spec.Decision != ir.DecisionDeny {
		return nil, fmt.Errorf("rules: rule %q: decision must be approve or deny, got %q", spec.Name, spec.Decision)
	}

	ev, err := EvaluatorFor(spec.Engine)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
	}
	prog, err := ev.Compile(spec.Expr)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
	}

	return &Rule{
		Name:     spec.Name,
		Decision: spec.Decision,
		Engine:   ev.Name(),
		Expr:     spec.Expr,
		program:  prog,
	}, nil
}

// CompileAll compiles specs in declaration order.
func CompileAll(specs []ir.RuleSpec) ([]*Rule, error) {
	out := make([]*Rule, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, fmt.Errorf("rules: duplicate rule name %q", spec.Name)
		}
		seen[spec.Name] = true

		r, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Matches evaluates the rule against env.
func (r *Rule) Matches(env Env) (bool, error) {
	return r.program.Eval(env)
}
