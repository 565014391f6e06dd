package approval

import "github.com/roach88/approval/internal/ir"

// Diff compares candidate against baseline for tracked and stored fields.
//
// The candidate is a patch: only keys it contains are compared, and a key
// absent from baseline counts as changed. Equality is ir.Equal, so no type
// coercion happens (1 and "1" differ). An empty result means the submission
// is a no-op.
func Diff(baseline, candidate ir.Fields, cfg *ir.ModelConfig) ir.ChangeSet {
	cs := ir.ChangeSet{}
	for k, next := range candidate {
		if !cfg.IsTracked(k) && !cfg.IsStored(k) {
			continue
		}
		prev, present := baseline[k]
		if present && ir.Equal(prev, next) {
			continue
		}
		cs[k] = ir.FieldChange{Old: prev, New: next, Present: present}
	}
	return cs
}
