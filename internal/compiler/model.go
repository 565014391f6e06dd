package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/approval/internal/ir"
)

// CompileModel parses a CUE value into a ModelConfig.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: post: { tracked: ["title"] }`)
//	cfg, err := CompileModel(v.LookupPath(cue.ParsePath("model.post")))
func CompileModel(v cue.Value) (*ir.ModelConfig, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &ir.ModelConfig{}

	// Record type comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		cfg.Type = labels[len(labels)-1].Unquoted()
	}

	var err error
	if cfg.Tracked, err = parseStringList(v, "tracked"); err != nil {
		return nil, err
	}
	if cfg.Stored, err = parseStringList(v, "stored"); err != nil {
		return nil, err
	}
	if cfg.Defaults, err = parseDefaults(v); err != nil {
		return nil, err
	}

	auto := v.LookupPath(cue.ParsePath("auto_approve"))
	if auto.Exists() {
		if cfg.AutoApproveStaff, err = parseBool(auto, "staff"); err != nil {
			return nil, err
		}
		if cfg.AutoApproveNew, err = parseBool(auto, "new"); err != nil {
			return nil, err
		}
		if cfg.AutoApproveByRequest, err = parseBool(auto, "by_request"); err != nil {
			return nil, err
		}
	}

	retention, err := parseString(v, "retention")
	if err != nil {
		return nil, err
	}
	cfg.Retention = ir.Retention(retention)

	if cfg.AuthorsField, err = parseString(v, "authors_field"); err != nil {
		return nil, err
	}

	if cfg.Rules, err = parseRules(v); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseStringList reads an optional list of strings.
func parseStringList(v cue.Value, field string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: val.Pos()}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func parseString(v cue.Value, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: val.Pos()}
	}
	return s, nil
}

func parseBool(v cue.Value, field string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, &CompileError{Field: "auto_approve." + field, Message: "must be a bool", Pos: val.Pos()}
	}
	return b, nil
}

// parseDefaults converts the defaults struct into record values.
func parseDefaults(v cue.Value) (ir.Fields, error) {
	val := v.LookupPath(cue.ParsePath("defaults"))
	if !val.Exists() {
		return nil, nil
	}

	iter, err := val.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := ir.Fields{}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		value, err := convertValue(iter.Value(), "defaults."+name)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// convertValue converts a concrete CUE value into an IRValue.
// Floats are forbidden: record values carry integers and strings only.
func convertValue(v cue.Value, path string) (ir.IRValue, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.NewIRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.NewIRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.NewIRBool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var elems []ir.IRValue
		for i := 0; iter.Next(); i++ {
			elem, err := convertValue(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		return ir.NewIRArray(elems...), nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := convertValue(iter.Value(), path+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   path,
			Message: "float values are forbidden - use int or a decimal string",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseRules extracts custom auto-processing rules in declaration order.
func parseRules(v cue.Value) ([]ir.RuleSpec, error) {
	val := v.LookupPath(cue.ParsePath("rules"))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, &CompileError{Field: "rules", Message: "must be a list", Pos: val.Pos()}
	}

	var out []ir.RuleSpec
	for iter.Next() {
		rv := iter.Value()
		var spec ir.RuleSpec
		if spec.Name, err = parseString(rv, "name"); err != nil {
			return nil, err
		}
		if spec.Engine, err = parseString(rv, "engine"); err != nil {
			return nil, err
		}
		if spec.Expr, err = parseString(rv, "expr"); err != nil {
			return nil, err
		}
		decision, err := parseString(rv, "decision")
		if err != nil {
			return nil, err
		}
		spec.Decision = ir.Decision(decision)
		out = append(out, spec)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
