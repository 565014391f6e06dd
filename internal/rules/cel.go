package rules

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
)

type celEvaluator struct{}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator() Evaluator {
	return celEvaluator{}
}

func (celEvaluator) Name() string { return "cel" }

func (celEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapEvaluationError("cel", expression, fmt.Errorf("expression must not be empty"))
	}

	env, err := celgo.NewEnv(
		celgo.Variable("record_type", celgo.StringType),
		celgo.Variable("id", celgo.StringType),
		celgo.Variable("authors", celgo.ListType(celgo.StringType)),
		celgo.Variable("actor", celgo.StringType),
		celgo.Variable("is_new", celgo.BoolType),
		celgo.Variable("pending", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("stored", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("live", celgo.MapType(celgo.StringType, celgo.DynType)),
	)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	return &celProgram{program: prg, expression: expression}, nil
}

type celProgram struct {
	program    celgo.Program
	expression string
}

func (p *celProgram) Eval(env Env) (bool, error) {
	out, _, err := p.program.Eval(env.Vars())
	if err != nil {
		return false, wrapEvaluationError("cel", p.expression, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, wrapEvaluationError("cel", p.expression, fmt.Errorf("result is %T, want bool", out.Value()))
	}
	return matched, nil
}
