package approval

import (
	"context"
	"fmt"

	"github.com/roach88/approval/internal/ir"
)

// Resolve approves or denies a Pending sandbox on behalf of resolver.
//
// Approval merges the sandbox into the live record and persists both in one
// atomic commit; the merged live record is returned. Denial persists only
// the sandbox and returns nil. Resolving anything but a Pending sandbox,
// including a second resolve of the same sandbox, is an InvalidStateError
// and leaves the live record untouched.
func (e *Engine) Resolve(ctx context.Context, sandboxID string, decision ir.Decision, resolver ir.Identity, reason string) (live *ir.LiveRecord, err error) {
	if decision != ir.DecisionApprove && decision != ir.DecisionDeny {
		return nil, newInvalidStateError(ir.RecordRef{}, sandboxID, "decision must be approve or deny, got %q", decision)
	}

	current, err := e.store.ReadSandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("read sandbox %s: %w", sandboxID, err)
	}
	if current == nil {
		return nil, newInvalidStateError(ir.RecordRef{}, sandboxID, "no pending sandbox")
	}
	ref := current.Ref

	ctx, span := e.startSpan(ctx, "Resolve", ref)
	defer func() { endSpan(span, err) }()

	model, err := e.registry.Lookup(ref.Type)
	if err != nil {
		return nil, err
	}

	err = e.withLock(ctx, ref, func() error {
		var (
			events    []Event
			lockedErr error
		)
		live, events, lockedErr = e.resolveLocked(ctx, model, sandboxID, decision, resolver, reason)
		e.emit(ctx, events)
		return lockedErr
	})
	return live, err
}

func (e *Engine) resolveLocked(ctx context.Context, model *Model, sandboxID string, decision ir.Decision, resolver ir.Identity, reason string) (*ir.LiveRecord, []Event, error) {
	cfg := &model.Config

	current, err := e.store.ReadSandbox(ctx, sandboxID)
	if err != nil {
		return nil, nil, fmt.Errorf("read sandbox %s: %w", sandboxID, err)
	}
	if current == nil {
		return nil, nil, newInvalidStateError(ir.RecordRef{}, sandboxID, "no pending sandbox")
	}

	target := ir.StatusApproved
	if decision == ir.DecisionDeny {
		target = ir.StatusDenied
	}
	if current.Status != ir.StatusPending {
		return nil, nil, transitionSandbox(current.Clone(), target)
	}

	now := e.now()
	sbNext := current.Clone()
	var ops []ir.Op
	var merged *ir.LiveRecord

	if decision == ir.DecisionApprove {
		live, err := e.store.ReadLive(ctx, current.Ref)
		if err != nil {
			return nil, nil, fmt.Errorf("read live %s: %w", current.Ref.Key(), err)
		}
		merged, err = Apply(sbNext, live)
		if err != nil {
			return nil, nil, err
		}
		var prevVersion int64
		if live != nil {
			prevVersion = live.Version
		}
		merged.Version = prevVersion + 1
		merged.UpdatedAt = now
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = now
		}
		ops = append(ops, ir.PutLive(merged, prevVersion))
	}

	if err := resolveSandbox(sbNext, target, resolver, reason, "", now); err != nil {
		return nil, nil, err
	}
	sbNext.Revision = current.Revision + 1
	ops = append(ops, sandboxOps(cfg, sbNext, current.Revision, true)...)

	if err := e.commit(ctx, current.Ref, sbNext.ID, ops); err != nil {
		return nil, nil, err
	}

	kind := EventApproved
	if target == ir.StatusDenied {
		kind = EventDenied
	}
	events := []Event{{
		Kind:      kind,
		Ref:       current.Ref,
		SandboxID: sbNext.ID,
		Revision:  sbNext.Revision,
		Status:    target,
		Entered:   true,
		Fields:    current.Pending.Keys(),
		Authors:   sbNext.Authors,
		Actor:     resolver,
		Reason:    reason,
		Time:      now,
	}}

	e.logger.Info("sandbox "+string(target),
		"record", current.Ref.Key(),
		"sandbox", sbNext.ID,
		"resolver", resolver,
	)

	if merged == nil {
		return nil, events, nil
	}
	return merged.Clone(), events, nil
}
