package ir

import "slices"

// Retention decides what happens to a sandbox once it is resolved.
type Retention string

const (
	// RetainHistory keeps resolved sandboxes for audit. This is the default.
	RetainHistory Retention = "retain"
	// RetainNone deletes the sandbox in the same commit that resolves it.
	RetainNone Retention = "delete"
)

// Decision is the outcome of moderation or policy evaluation.
type Decision string

const (
	DecisionApprove    Decision = "approve"
	DecisionDeny       Decision = "deny"
	DecisionNoDecision Decision = "none"
)

// Rule engines accepted by RuleSpec.Engine.
const (
	RuleEngineExpr = "expr"
	RuleEngineCEL  = "cel"
)

// RuleSpec is a custom auto-processing rule evaluated after the fixed policy
// rules. Expr must evaluate to a bool; when true, Decision is applied.
type RuleSpec struct {
	Name     string   `json:"name" validate:"required"`
	Engine   string   `json:"engine" validate:"omitempty,oneof=expr cel"`
	Expr     string   `json:"expr" validate:"required"`
	Decision Decision `json:"decision" validate:"required,oneof=approve deny"`
}

// ModelConfig describes how one live-record type is moderated.
// It is immutable after registration.
type ModelConfig struct {
	Type string `json:"type" validate:"required"`

	// Tracked fields require approval when changed.
	Tracked []string `json:"tracked" validate:"dive,required"`
	// Stored fields are copied into the sandbox but never require approval.
	Stored []string `json:"stored" validate:"dive,required"`
	// Defaults overlay tracked fields on new records until first approval.
	Defaults Fields `json:"defaults,omitempty"`

	AutoApproveStaff     bool `json:"auto_approve_staff"`
	AutoApproveNew       bool `json:"auto_approve_new"`
	AutoApproveByRequest bool `json:"auto_approve_by_request"`

	Retention Retention `json:"retention,omitempty" validate:"omitempty,oneof=retain delete"`

	// AuthorsField names a live-record field holding the author identity
	// (a string or a list of strings). Hosts may use it to build an
	// AuthorResolver; the engine itself never reads it.
	AuthorsField string `json:"authors_field,omitempty"`

	Rules []RuleSpec `json:"rules,omitempty" validate:"dive"`
}

// IsTracked reports whether name is a tracked field.
func (c *ModelConfig) IsTracked(name string) bool {
	return slices.Contains(c.Tracked, name)
}

// IsStored reports whether name is a stored field.
func (c *ModelConfig) IsStored(name string) bool {
	return slices.Contains(c.Stored, name)
}

// RetentionOrDefault returns the configured retention, RetainHistory if unset.
func (c *ModelConfig) RetentionOrDefault() Retention {
	if c.Retention == "" {
		return RetainHistory
	}
	return c.Retention
}

// Clone returns a deep copy so registries can hold an immutable snapshot.
func (c ModelConfig) Clone() ModelConfig {
	c.Tracked = slices.Clone(c.Tracked)
	c.Stored = slices.Clone(c.Stored)
	if c.Defaults != nil {
		c.Defaults = c.Defaults.Clone()
	}
	c.Rules = slices.Clone(c.Rules)
	return c
}
