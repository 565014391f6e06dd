package approval

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/rules"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Model is a registered record type: its frozen configuration, hooks and
// compiled policy.
type Model struct {
	Config ir.ModelConfig
	Hooks  Hooks
	Policy *Policy
}

// Registry holds the registered record types.
//
// Thread-safety: all methods are safe for concurrent use. Registered models
// are never mutated.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register validates cfg and hooks and freezes them under cfg.Type.
// All configuration problems surface here as a ConfigError, never per call.
func (r *Registry) Register(cfg ir.ModelConfig, hooks Hooks) error {
	cfg = cfg.Clone()
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if hooks.Authors == nil {
		return NewConfigError(cfg.Type, "author resolver is required")
	}

	compiled, err := rules.CompileAll(cfg.Rules)
	if err != nil {
		return &Error{
			Code:    ErrCodeConfig,
			Message: "invalid custom rule",
			Ref:     ir.RecordRef{Type: cfg.Type},
			Err:     err,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[cfg.Type]; exists {
		return NewConfigError(cfg.Type, "type already registered")
	}
	r.models[cfg.Type] = &Model{
		Config: cfg,
		Hooks:  hooks,
		Policy: NewPolicy(cfg, hooks, compiled),
	}
	return nil
}

// Lookup returns the model registered for recordType.
func (r *Registry) Lookup(recordType string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[recordType]
	if !ok {
		return nil, NewConfigError(recordType, "type is not registered")
	}
	return m, nil
}

// Types returns registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for t := range r.models {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// ValidateConfig checks the structural invariants of a model configuration:
// tracked and stored are disjoint, defaults only name tracked fields, and
// no field is listed twice.
func ValidateConfig(cfg ir.ModelConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return &Error{
			Code:    ErrCodeConfig,
			Message: validationMessage(err),
			Ref:     ir.RecordRef{Type: cfg.Type},
		}
	}

	seen := make(map[string]string, len(cfg.Tracked)+len(cfg.Stored))
	for _, f := range cfg.Tracked {
		if seen[f] != "" {
			return NewConfigError(cfg.Type, "field %q listed twice in tracked", f)
		}
		seen[f] = "tracked"
	}
	for _, f := range cfg.Stored {
		switch seen[f] {
		case "tracked":
			return NewConfigError(cfg.Type, "field %q is both tracked and stored", f)
		case "stored":
			return NewConfigError(cfg.Type, "field %q listed twice in stored", f)
		}
		seen[f] = "stored"
	}
	for _, k := range cfg.Defaults.Keys() {
		if seen[k] != "tracked" {
			return NewConfigError(cfg.Type, "default for %q references a non-tracked field", k)
		}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: rule '%s' expected '%s'", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: rule '%s' failed", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
