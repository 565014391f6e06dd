package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/approval/internal/compiler"
	"github.com/roach88/approval/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models are registered before the first step.
	Models []ModelSpec `yaml:"models"`

	// Staff identities are privileged for staff auto-approval.
	Staff []string `yaml:"staff,omitempty"`

	// Forbidden identities have every change denied.
	Forbidden []string `yaml:"forbidden,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// ModelSpec is the YAML form of ir.ModelConfig.
type ModelSpec struct {
	Type         string          `yaml:"type"`
	Tracked      []string        `yaml:"tracked"`
	Stored       []string        `yaml:"stored,omitempty"`
	Defaults     map[string]any  `yaml:"defaults,omitempty"`
	AutoApprove  AutoApproveSpec `yaml:"auto_approve,omitempty"`
	Retention    string          `yaml:"retention,omitempty"`
	AuthorsField string          `yaml:"authors_field,omitempty"`
	Rules        []RuleSpec      `yaml:"rules,omitempty"`
}

// AutoApproveSpec toggles the fixed policy rules.
type AutoApproveSpec struct {
	Staff     bool `yaml:"staff,omitempty"`
	New       bool `yaml:"new,omitempty"`
	ByRequest bool `yaml:"by_request,omitempty"`
}

// RuleSpec is the YAML form of ir.RuleSpec.
type RuleSpec struct {
	Name     string `yaml:"name"`
	Engine   string `yaml:"engine,omitempty"`
	Expr     string `yaml:"expr"`
	Decision string `yaml:"decision"`
}

// Step holds exactly one action or expectation.
type Step struct {
	Submit      *SubmitStep      `yaml:"submit,omitempty"`
	SubmitDraft *SubmitDraftStep `yaml:"submit_draft,omitempty"`
	Resolve     *ResolveStep     `yaml:"resolve,omitempty"`
	Expect      *ExpectStep      `yaml:"expect,omitempty"`
}

// SubmitStep calls SubmitChange with fields as the candidate patch.
type SubmitStep struct {
	Type   string         `yaml:"type"`
	ID     string         `yaml:"id"`
	Actor  string         `yaml:"actor,omitempty"`
	Fields map[string]any `yaml:"fields"`
	Draft  bool           `yaml:"draft,omitempty"`
	// Error is the expected error kind; empty expects success.
	Error string `yaml:"error,omitempty"`
}

// SubmitDraftStep moves a Draft sandbox to Pending.
type SubmitDraftStep struct {
	Sandbox string `yaml:"sandbox"`
	Actor   string `yaml:"actor,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// ResolveStep approves or denies a sandbox.
type ResolveStep struct {
	Sandbox  string `yaml:"sandbox"`
	Decision string `yaml:"decision"`
	Resolver string `yaml:"resolver,omitempty"`
	Reason   string `yaml:"reason,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// ExpectStep checks the state of one record and optionally one sandbox.
// Only the members that are set are checked.
type ExpectStep struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`

	// Exists checks whether a live record is persisted.
	Exists *bool `yaml:"exists,omitempty"`
	// Approved checks the live record's approval flag.
	Approved *bool `yaml:"approved,omitempty"`
	// Live is a subset match against the public view (GetLive).
	Live map[string]any `yaml:"live,omitempty"`
	// Effective is a subset match against GetEffectiveState.
	Effective map[string]any `yaml:"effective,omitempty"`
	// Pending is the open sandbox status: "draft", "pending" or "none".
	Pending string `yaml:"pending,omitempty"`

	Sandbox *SandboxExpect `yaml:"sandbox,omitempty"`
}

// SandboxExpect checks a sandbox by ID. Deleted checks that the sandbox no
// longer exists, as with delete retention.
type SandboxExpect struct {
	ID         string `yaml:"id"`
	Status     string `yaml:"status,omitempty"`
	ResolvedBy string `yaml:"resolved_by,omitempty"`
	Rule       string `yaml:"rule,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
	Deleted    bool   `yaml:"deleted,omitempty"`
}

// Expected error kinds.
const (
	ErrorConfig           = "config"
	ErrorInvalidState     = "invalid_state"
	ErrorCommitFailure    = "commit_failure"
	ErrorAuthorResolution = "author_resolution"
	ErrorRuleEvaluation   = "rule_evaluation"
)

// Config converts the YAML model to a model configuration.
func (m ModelSpec) Config() (ir.ModelConfig, error) {
	cfg := ir.ModelConfig{
		Type:                 m.Type,
		Tracked:              m.Tracked,
		Stored:               m.Stored,
		AutoApproveStaff:     m.AutoApprove.Staff,
		AutoApproveNew:       m.AutoApprove.New,
		AutoApproveByRequest: m.AutoApprove.ByRequest,
		Retention:            ir.Retention(m.Retention),
		AuthorsField:         m.AuthorsField,
	}
	if len(m.Defaults) > 0 {
		defaults, err := toFields(m.Defaults)
		if err != nil {
			return ir.ModelConfig{}, fmt.Errorf("model %s: defaults: %w", m.Type, err)
		}
		cfg.Defaults = defaults
	}
	for _, r := range m.Rules {
		cfg.Rules = append(cfg.Rules, ir.RuleSpec{
			Name:     r.Name,
			Engine:   r.Engine,
			Expr:     r.Expr,
			Decision: ir.Decision(r.Decision),
		})
	}
	return cfg, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "expects:" vs "expect:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Models) == 0 {
		return fmt.Errorf("models list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, m := range s.Models {
		cfg, err := m.Config()
		if err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if errs := compiler.Validate(&cfg); len(errs) > 0 {
			return fmt.Errorf("models[%d]: %s", i, errs[0].Error())
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step holds exactly one action and that the
// action has its required members.
func validateStep(index int, st *Step) error {
	set := 0
	for _, present := range []bool{st.Submit != nil, st.SubmitDraft != nil, st.Resolve != nil, st.Expect != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of submit, submit_draft, resolve or expect is required", index)
	}

	var errKind string
	switch {
	case st.Submit != nil:
		if st.Submit.Type == "" || st.Submit.ID == "" {
			return fmt.Errorf("steps[%d].submit: type and id are required", index)
		}
		if st.Submit.Fields == nil {
			return fmt.Errorf("steps[%d].submit: fields is required (use empty map if no fields)", index)
		}
		errKind = st.Submit.Error
	case st.SubmitDraft != nil:
		if st.SubmitDraft.Sandbox == "" {
			return fmt.Errorf("steps[%d].submit_draft: sandbox is required", index)
		}
		errKind = st.SubmitDraft.Error
	case st.Resolve != nil:
		if st.Resolve.Sandbox == "" {
			return fmt.Errorf("steps[%d].resolve: sandbox is required", index)
		}
		switch ir.Decision(st.Resolve.Decision) {
		case ir.DecisionApprove, ir.DecisionDeny:
		default:
			return fmt.Errorf("steps[%d].resolve: decision must be approve or deny, got %q", index, st.Resolve.Decision)
		}
		errKind = st.Resolve.Error
	case st.Expect != nil:
		if st.Expect.Type == "" || st.Expect.ID == "" {
			return fmt.Errorf("steps[%d].expect: type and id are required", index)
		}
		switch st.Expect.Pending {
		case "", "none", string(ir.StatusDraft), string(ir.StatusPending):
		default:
			return fmt.Errorf("steps[%d].expect: pending must be draft, pending or none, got %q", index, st.Expect.Pending)
		}
		if st.Expect.Sandbox != nil && st.Expect.Sandbox.ID == "" {
			return fmt.Errorf("steps[%d].expect.sandbox: id is required", index)
		}
	}

	switch errKind {
	case "", ErrorConfig, ErrorInvalidState, ErrorCommitFailure, ErrorAuthorResolution, ErrorRuleEvaluation:
	default:
		return fmt.Errorf("steps[%d]: unknown error kind %q", index, errKind)
	}
	return nil
}

// toFields converts YAML-decoded values to record fields. Non-integral
// numbers are rejected.
func toFields(m map[string]any) (ir.Fields, error) {
	out := make(ir.Fields, len(m))
	for k, v := range m {
		iv, err := ir.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}
