package approval

import "github.com/roach88/approval/internal/ir"

// transitions lists every legal status change. Approved and Denied are
// terminal; re-editing a resolved record opens a new sandbox instead.
var transitions = map[ir.Status][]ir.Status{
	ir.StatusDraft:   {ir.StatusPending},
	ir.StatusPending: {ir.StatusApproved, ir.StatusDenied},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to ir.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns an InvalidStateError unless from -> to is legal.
func Transition(from, to ir.Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return newInvalidStateError(ir.RecordRef{}, "", "sandbox is already %s", from)
	}
	return newInvalidStateError(ir.RecordRef{}, "", "cannot move sandbox from %s to %s", from, to)
}

// transitionSandbox applies Transition and stamps the sandbox identity onto
// any error.
func transitionSandbox(sb *ir.SandboxRecord, to ir.Status) error {
	if err := Transition(sb.Status, to); err != nil {
		e := err.(*Error)
		e.Ref = sb.Ref
		e.SandboxID = sb.ID
		return e
	}
	sb.Status = to
	return nil
}
