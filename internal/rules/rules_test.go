package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/ir"
)

func sampleEnv() Env {
	return Env{
		Type:    "article",
		ID:      "42",
		Authors: []ir.Identity{"alice", "bob"},
		Actor:   "alice",
		IsNew:   false,
		Pending: ir.Fields{"body": ir.IRString("hello"), "rank": ir.IRInt(3)},
		Stored:  ir.Fields{"views": ir.IRInt(10)},
		Live:    ir.Fields{"body": ir.IRString("old")},
	}
}

func TestEvaluators(t *testing.T) {
	tests := []struct {
		name   string
		engine string
		expr   string
		want   bool
	}{
		{"expr author membership", "expr", `"bob" in authors`, true},
		{"expr actor", "expr", `actor == "alice" && !is_new`, true},
		{"expr pending value", "expr", `pending.rank > 2`, true},
		{"expr type", "expr", `record_type == "comment"`, false},
		{"expr default engine", "", `len(authors) == 2`, true},
		{"cel author membership", "cel", `"bob" in authors`, true},
		{"cel actor", "cel", `actor in authors && !is_new`, true},
		{"cel pending value", "cel", `pending.body == "hello"`, true},
		{"cel has", "cel", `has(stored.missing)`, false},
		{"cel id", "cel", `id == "43"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Compile(ir.RuleSpec{
				Name:     "r",
				Engine:   tt.engine,
				Expr:     tt.expr,
				Decision: ir.DecisionApprove,
			})
			require.NoError(t, err)

			got, err := rule.Matches(sampleEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec ir.RuleSpec
	}{
		{"empty name", ir.RuleSpec{Expr: "true", Decision: ir.DecisionApprove}},
		{"bad decision", ir.RuleSpec{Name: "r", Expr: "true", Decision: "maybe"}},
		{"unknown engine", ir.RuleSpec{Name: "r", Engine: "lua", Expr: "true", Decision: ir.DecisionDeny}},
		{"empty expr", ir.RuleSpec{Name: "r", Decision: ir.DecisionDeny}},
		{"expr syntax", ir.RuleSpec{Name: "r", Expr: "authors ==", Decision: ir.DecisionDeny}},
		{"expr unknown variable", ir.RuleSpec{Name: "r", Expr: "nobody == 1", Decision: ir.DecisionDeny}},
		{"expr not bool", ir.RuleSpec{Name: "r", Expr: `"x"`, Decision: ir.DecisionDeny}},
		{"cel syntax", ir.RuleSpec{Name: "r", Engine: "cel", Expr: "is_new &&", Decision: ir.DecisionDeny}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestCELNonBoolResult(t *testing.T) {
	rule, err := Compile(ir.RuleSpec{Name: "r", Engine: "cel", Expr: `record_type`, Decision: ir.DecisionApprove})
	require.NoError(t, err)

	_, err = rule.Matches(sampleEnv())
	require.Error(t, err)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "cel", evalErr.Engine)
}

func TestCompileAllKeepsOrder(t *testing.T) {
	rules, err := CompileAll([]ir.RuleSpec{
		{Name: "first", Expr: "is_new", Decision: ir.DecisionApprove},
		{Name: "second", Engine: "cel", Expr: "is_new", Decision: ir.DecisionDeny},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "first", rules[0].Name)
	assert.Equal(t, "expr", rules[0].Engine)
	assert.Equal(t, "cel", rules[1].Engine)
}

func TestCompileAllRejectsDuplicates(t *testing.T) {
	_, err := CompileAll([]ir.RuleSpec{
		{Name: "same", Expr: "true", Decision: ir.DecisionApprove},
		{Name: "same", Expr: "false", Decision: ir.DecisionApprove},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEnvVars(t *testing.T) {
	vars := sampleEnv().Vars()
	assert.Equal(t, []string{"alice", "bob"}, vars["authors"])
	assert.Equal(t, map[string]any{"views": int64(10)}, vars["stored"])
}
