package approval

import "github.com/roach88/approval/internal/ir"

// Project computes what a record looks like to readers.
//
// Live fields are overlaid with the open sandbox's staged and stored values
// (pass nil for the public view). While the live record has never been
// approved, configured defaults replace tracked fields on top of that. The
// persisted data is never rewritten; the overlay disappears with the first
// approval and survives denials.
func Project(cfg *ir.ModelConfig, live *ir.LiveRecord, sb *ir.SandboxRecord) ir.Fields {
	out := Staged(live, sb)
	if overlayActive(live, sb) {
		for k, v := range cfg.Defaults {
			out[k] = ir.Clone(v)
		}
	}
	return out
}

// overlayActive reports whether defaults apply. A record that only exists
// as a staged sandbox has no persisted approval either.
func overlayActive(live *ir.LiveRecord, sb *ir.SandboxRecord) bool {
	if live != nil {
		return !live.Approved
	}
	return sb != nil && sb.Status.Open()
}

// Staged returns the live fields overlaid with the open sandbox's staged and
// stored values, without defaults. Submissions diff against this state so a
// candidate equal to a default is still staged.
func Staged(live *ir.LiveRecord, sb *ir.SandboxRecord) ir.Fields {
	out := ir.Fields{}
	if live != nil {
		out = live.Fields.Clone()
	}
	if sb != nil && sb.Status.Open() {
		for k, v := range sb.Stored {
			out[k] = ir.Clone(v)
		}
		for k, v := range sb.Pending {
			out[k] = ir.Clone(v)
		}
	}
	return out
}
