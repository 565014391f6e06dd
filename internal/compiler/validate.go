package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/rules"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ModelConfig errors (E101-E109)
	ErrModelTypeEmpty      = "E101" // record type is required
	ErrModelNoTracked      = "E102" // at least one tracked field required
	ErrTrackedStoredShared = "E103" // field is both tracked and stored
	ErrInvalidFieldName    = "E104" // field name is not an identifier
	ErrDuplicateName       = "E105" // duplicate field or rule name
	ErrFloatTypeForbidden  = "E106" // float values not allowed (reported by CompileModel)
	ErrDefaultNotTracked   = "E107" // default names a non-tracked field
	ErrInvalidRetention    = "E108" // retention is not retain or delete

	// RuleSpec errors (E110-E119)
	ErrInvalidRuleEngine   = "E110" // engine is not expr or cel
	ErrInvalidRuleDecision = "E111" // decision is not approve or deny
	ErrInvalidRuleExpr     = "E112" // expression is empty or does not compile
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports ModelConfig and RuleSpec types.
func Validate(v any) []ValidationError {
	switch cfg := v.(type) {
	case *ir.ModelConfig:
		return validateModelConfig(cfg)
	case ir.ModelConfig:
		return validateModelConfig(&cfg)
	case *ir.RuleSpec:
		return validateRuleSpec(cfg, "rules[0]")
	case ir.RuleSpec:
		return validateRuleSpec(&cfg, "rules[0]")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// fieldNamePattern matches record field names: lower snake case identifiers.
var fieldNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validateModelConfig validates a model configuration.
func validateModelConfig(cfg *ir.ModelConfig) []ValidationError {
	var errs []ValidationError

	// E101: record type is required
	if strings.TrimSpace(cfg.Type) == "" {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "record type is required and must be non-empty",
			Code:    ErrModelTypeEmpty,
		})
	}

	// E102: at least one tracked field
	if len(cfg.Tracked) == 0 {
		errs = append(errs, ValidationError{
			Field:   "tracked",
			Message: "at least one tracked field is required",
			Code:    ErrModelNoTracked,
		})
	}

	tracked := make(map[string]bool, len(cfg.Tracked))
	for i, name := range cfg.Tracked {
		field := fmt.Sprintf("tracked[%d]", i)
		errs = append(errs, checkFieldName(field, name)...)
		if tracked[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate tracked field %q", name),
				Code:    ErrDuplicateName,
			})
		}
		tracked[name] = true
	}

	stored := make(map[string]bool, len(cfg.Stored))
	for i, name := range cfg.Stored {
		field := fmt.Sprintf("stored[%d]", i)
		errs = append(errs, checkFieldName(field, name)...)
		if stored[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate stored field %q", name),
				Code:    ErrDuplicateName,
			})
		}
		stored[name] = true

		// E103: tracked and stored must be disjoint
		if tracked[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("field %q is both tracked and stored", name),
				Code:    ErrTrackedStoredShared,
			})
		}
	}

	for _, name := range cfg.Defaults.Keys() {
		field := "defaults." + name
		// E107: defaults only overlay tracked fields
		if !tracked[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("default for %q references a non-tracked field", name),
				Code:    ErrDefaultNotTracked,
			})
		}
	}

	// E108: retention
	switch cfg.Retention {
	case "", ir.RetainHistory, ir.RetainNone:
	default:
		errs = append(errs, ValidationError{
			Field:   "retention",
			Message: fmt.Sprintf("invalid retention %q: must be 'retain' or 'delete'", cfg.Retention),
			Code:    ErrInvalidRetention,
		})
	}

	if cfg.AuthorsField != "" {
		errs = append(errs, checkFieldName("authors_field", cfg.AuthorsField)...)
	}

	ruleNames := make(map[string]bool, len(cfg.Rules))
	for i := range cfg.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		spec := &cfg.Rules[i]
		if spec.Name != "" && ruleNames[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate rule name %q", spec.Name),
				Code:    ErrDuplicateName,
			})
		}
		ruleNames[spec.Name] = true
		errs = append(errs, validateRuleSpec(spec, field)...)
	}

	return errs
}

// validateRuleSpec validates one custom rule. field prefixes reported paths.
func validateRuleSpec(spec *ir.RuleSpec, field string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: "rule name is required",
			Code:    ErrInvalidRuleExpr,
		})
	}

	// E110: engine
	engineOK := true
	if _, err := rules.EvaluatorFor(spec.Engine); err != nil {
		engineOK = false
		errs = append(errs, ValidationError{
			Field:   field + ".engine",
			Message: fmt.Sprintf("invalid engine %q: must be 'expr' or 'cel'", spec.Engine),
			Code:    ErrInvalidRuleEngine,
		})
	}

	// E111: decision
	if spec.Decision != ir.DecisionApprove && spec.Decision != ir.DecisionDeny {
		errs = append(errs, ValidationError{
			Field:   field + ".decision",
			Message: fmt.Sprintf("invalid decision %q: must be 'approve' or 'deny'", spec.Decision),
			Code:    ErrInvalidRuleDecision,
		})
	}

	// E112: expression must be present and compile
	if strings.TrimSpace(spec.Expr) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".expr",
			Message: "expression is required",
			Code:    ErrInvalidRuleExpr,
		})
	} else if engineOK {
		ev, _ := rules.EvaluatorFor(spec.Engine)
		if _, err := ev.Compile(spec.Expr); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".expr",
				Message: err.Error(),
				Code:    ErrInvalidRuleExpr,
			})
		}
	}

	return errs
}

func checkFieldName(field, name string) []ValidationError {
	if fieldNamePattern.MatchString(name) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("invalid field name %q: must match %s", name, fieldNamePattern.String()),
		Code:    ErrInvalidFieldName,
	}}
}
