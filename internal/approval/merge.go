package approval

import (
	"time"

	"github.com/roach88/approval/internal/ir"
)

// Apply writes the sandbox's staged and stored values onto live and marks it
// approved. Fields outside the sandbox are untouched. It is pure: the inputs
// are not modified and the caller persists the result.
//
// Applying a sandbox that is already approved or denied fails with an
// InvalidStateError so retried calls can never merge twice.
func Apply(sb *ir.SandboxRecord, live *ir.LiveRecord) (*ir.LiveRecord, error) {
	if sb.Status.Terminal() {
		return nil, newInvalidStateError(sb.Ref, sb.ID, "sandbox is already %s", sb.Status)
	}

	var next *ir.LiveRecord
	if live != nil {
		next = live.Clone()
	} else {
		next = &ir.LiveRecord{Ref: sb.Ref, Fields: ir.Fields{}}
	}
	for k, v := range sb.Stored {
		next.Fields[k] = ir.Clone(v)
	}
	for k, v := range sb.Pending {
		next.Fields[k] = ir.Clone(v)
	}
	next.Approved = true
	return next, nil
}

// resolveSandbox moves sb into a terminal status and records who decided.
// Staged values are cleared; Digest keeps the identity of what was decided.
func resolveSandbox(sb *ir.SandboxRecord, to ir.Status, by ir.Identity, reason, rule string, now time.Time) error {
	if err := transitionSandbox(sb, to); err != nil {
		return err
	}
	sb.Pending = ir.Fields{}
	sb.ResolvedAt = &now
	sb.ResolvedBy = by
	sb.Reason = reason
	sb.Rule = rule
	sb.UpdatedAt = now
	return nil
}
