package rules

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprEvaluator struct{}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator() Evaluator {
	return exprEvaluator{}
}

func (exprEvaluator) Name() string { return "expr" }

func (exprEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapEvaluationError("expr", expression, fmt.Errorf("expression must not be empty"))
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(Env{}.Vars()),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	return &exprProgram{program: program, expression: expression}, nil
}

type exprProgram struct {
	program    *exprvm.Program
	expression string
}

func (p *exprProgram) Eval(env Env) (bool, error) {
	out, err := exprlang.Run(p.program, env.Vars())
	if err != nil {
		return false, wrapEvaluationError("expr", p.expression, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, wrapEvaluationError("expr", p.expression, fmt.Errorf("result is %T, want bool", out))
	}
	return matched, nil
}
