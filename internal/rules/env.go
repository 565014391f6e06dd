package rules

import "github.com/roach88/approval/internal/ir"

// Env is the evaluation input of a rule.
type Env struct {
	Type    string
	ID      string
	Authors []ir.Identity
	Actor   ir.Identity
	IsNew   bool
	Pending ir.Fields
	Stored  ir.Fields
	Live    ir.Fields
}

// Vars flattens the environment into the variable map both engines read.
func (e Env) Vars() map[string]any {
	authors := make([]string, len(e.Authors))
	for i, a := range e.Authors {
		authors[i] = string(a)
	}
	return map[string]any{
		"record_type": e.Type,
		"id":          e.ID,
		"authors":     authors,
		"actor":       string(e.Actor),
		"is_new":      e.IsNew,
		"pending":     fieldsToMap(e.Pending),
		"stored":      fieldsToMap(e.Stored),
		"live":        fieldsToMap(e.Live),
	}
}

func fieldsToMap(f ir.Fields) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = ir.ToAny(v)
	}
	return out
}
