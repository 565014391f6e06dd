package approval

import "github.com/roach88/approval/internal/ir"

// Classification partitions a candidate state by field role.
type Classification struct {
	Tracked ir.Fields
	Stored  ir.Fields
	Ignored ir.Fields
}

// Classify splits candidate into tracked, stored and ignored fields.
// It is pure; cfg is assumed valid (see ValidateConfig).
func Classify(cfg *ir.ModelConfig, candidate ir.Fields) Classification {
	c := Classification{
		Tracked: ir.Fields{},
		Stored:  ir.Fields{},
		Ignored: ir.Fields{},
	}
	for k, v := range candidate {
		switch {
		case cfg.IsTracked(k):
			c.Tracked[k] = v
		case cfg.IsStored(k):
			c.Stored[k] = v
		default:
			c.Ignored[k] = v
		}
	}
	return c
}
