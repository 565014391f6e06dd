package approval

import (
	"context"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/rules"
)

// Names of the fixed policy rules, in evaluation order.
const (
	RuleForbiddenAuthor = "forbidden_author"
	RuleStaffAuthor     = "staff_author"
	RuleNewRecord       = "new_record"
	RuleRequestAuthor   = "request_author"
)

// Verdict is the policy outcome for one sandbox.
type Verdict struct {
	Decision ir.Decision
	// Rule names the rule that decided; empty for NoDecision.
	Rule string
}

var noDecision = Verdict{Decision: ir.DecisionNoDecision}

// Policy decides whether a sandbox entering Pending is resolved without a
// moderator. Rules are evaluated in a fixed order and the first match wins:
//
//  1. any author forbidden                         -> deny
//  2. AutoApproveStaff and every author privileged -> approve
//  3. AutoApproveNew and the record is new         -> approve
//  4. AutoApproveByRequest and actor is an author  -> approve
//  5. custom rules in declaration order
//
// A failing host predicate aborts evaluation with an AuthorResolutionError.
type Policy struct {
	cfg   ir.ModelConfig
	hooks Hooks
	rules []*rules.Rule
}

// NewPolicy builds the policy of a registered model.
func NewPolicy(cfg ir.ModelConfig, hooks Hooks, custom []*rules.Rule) *Policy {
	return &Policy{cfg: cfg, hooks: hooks, rules: custom}
}

// Evaluate runs the rules against sb. live is the persisted record, or nil
// when the record only exists in the sandbox.
func (p *Policy) Evaluate(ctx context.Context, sb *ir.SandboxRecord, live *ir.LiveRecord) (Verdict, error) {
	if p.hooks.Forbidden != nil {
		for _, author := range sb.Authors {
			forbidden, err := p.hooks.Forbidden.IsForbidden(ctx, author, sb.Ref)
			if err != nil {
				return noDecision, newAuthorResolutionError(sb.Ref, sb.ID, "forbidden check", err)
			}
			if forbidden {
				return Verdict{Decision: ir.DecisionDeny, Rule: RuleForbiddenAuthor}, nil
			}
		}
	}

	// An anonymous change is never staff-authored.
	if p.cfg.AutoApproveStaff && p.hooks.Privilege != nil && len(sb.Authors) > 0 {
		all := true
		for _, author := range sb.Authors {
			ok, err := p.hooks.Privilege.IsPrivileged(ctx, author)
			if err != nil {
				return noDecision, newAuthorResolutionError(sb.Ref, sb.ID, "privilege check", err)
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return Verdict{Decision: ir.DecisionApprove, Rule: RuleStaffAuthor}, nil
		}
	}

	if p.cfg.AutoApproveNew && sb.IsNew {
		return Verdict{Decision: ir.DecisionApprove, Rule: RuleNewRecord}, nil
	}

	actor, hasActor := p.hooks.requestActor(ctx)
	if p.cfg.AutoApproveByRequest && hasActor && sb.Authors.Contains(actor) {
		return Verdict{Decision: ir.DecisionApprove, Rule: RuleRequestAuthor}, nil
	}

	if len(p.rules) > 0 {
		env := rules.Env{
			Type:    sb.Ref.Type,
			ID:      sb.Ref.ID,
			Authors: sb.Authors,
			Actor:   actor,
			IsNew:   sb.IsNew,
			Pending: sb.Pending,
			Stored:  sb.Stored,
		}
		if live != nil {
			env.Live = live.Fields
		}
		for _, r := range p.rules {
			matched, err := r.Matches(env)
			if err != nil {
				return noDecision, newRuleEvaluationError(sb.Ref, sb.ID, r.Name, err)
			}
			if matched {
				return Verdict{Decision: r.Decision, Rule: r.Name}, nil
			}
		}
	}

	return noDecision, nil
}
