// Package authz answers the engine's privilege and forbidden-author
// questions from a casbin policy.
//
// Two actions are recognised. "privileged" marks staff whose changes may be
// auto-approved; it is checked against the object "*". "forbidden" marks
// identities whose changes to a record are always denied; it is checked
// against the record key "type/id", so policies can use keyMatch patterns
// such as "post/*".
//
// A policy file looks like:
//
//	p, role:staff, *, privileged
//	p, role:banned, *, forbidden
//	p, mallory, post/*, forbidden
//	g, alice, role:staff
package authz

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/roach88/approval/internal/ir"
)

const (
	ActionPrivileged = "privileged"
	ActionForbidden  = "forbidden"
)

// DefaultModel is the RBAC model used when no model file is given.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
`

// Authorizer implements approval.PrivilegeChecker and approval.ForbiddenChecker.
//
// Thread-safety: safe for concurrent use; the enforcer is synchronised.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// New returns an Authorizer over DefaultModel with an empty policy.
// Use Grant, Forbid and AddRole to populate it.
func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("authz: parse default model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// NewFromFiles loads a policy CSV file. An empty modelPath uses DefaultModel.
func NewFromFiles(modelPath, policyPath string) (*Authorizer, error) {
	var (
		m   model.Model
		err error
	)
	if modelPath == "" {
		m, err = model.NewModelFromString(DefaultModel)
	} else {
		m, err = model.NewModelFromFile(modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: load policy %s: %w", policyPath, err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Grant marks subject (an identity or role) as privileged.
func (a *Authorizer) Grant(subject string) error {
	_, err := a.enforcer.AddPolicy(subject, "*", ActionPrivileged)
	return err
}

// Forbid denies changes by subject to records matching pattern ("*",
// "post/*", "post/42").
func (a *Authorizer) Forbid(subject, pattern string) error {
	_, err := a.enforcer.AddPolicy(subject, pattern, ActionForbidden)
	return err
}

// AddRole assigns role to identity.
func (a *Authorizer) AddRole(id ir.Identity, role string) error {
	_, err := a.enforcer.AddGroupingPolicy(string(id), role)
	return err
}

// IsPrivileged reports whether id may have changes auto-approved as staff.
func (a *Authorizer) IsPrivileged(_ context.Context, id ir.Identity) (bool, error) {
	ok, err := a.enforcer.Enforce(string(id), "*", ActionPrivileged)
	if err != nil {
		return false, fmt.Errorf("authz: enforce %s: %w", ActionPrivileged, err)
	}
	return ok, nil
}

// IsForbidden reports whether changes by id to ref must be denied.
func (a *Authorizer) IsForbidden(_ context.Context, id ir.Identity, ref ir.RecordRef) (bool, error) {
	ok, err := a.enforcer.Enforce(string(id), ref.Key(), ActionForbidden)
	if err != nil {
		return false, fmt.Errorf("authz: enforce %s: %w", ActionForbidden, err)
	}
	return ok, nil
}
