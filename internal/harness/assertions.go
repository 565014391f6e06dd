package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/approval/internal/ir"
)

// ExpectationError describes every mismatch found by one expect step.
type ExpectationError struct {
	Record   string
	Failures []string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("expect %s: %s", e.Record, strings.Join(e.Failures, "; "))
}

// checkExpect evaluates an expect step. All members are checked before
// reporting.
func (h *Harness) checkExpect(ctx context.Context, ex *ExpectStep) error {
	ref := ir.RecordRef{Type: ex.Type, ID: ex.ID}
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	persisted, err := h.store.ReadLive(ctx, ref)
	if err != nil {
		return fmt.Errorf("read live %s: %w", ref.Key(), err)
	}
	if ex.Exists != nil && *ex.Exists != (persisted != nil) {
		fail("exists: want %t, got %t", *ex.Exists, persisted != nil)
	}
	if ex.Approved != nil {
		got := persisted != nil && persisted.Approved
		if got != *ex.Approved {
			fail("approved: want %t, got %t", *ex.Approved, got)
		}
	}

	if ex.Live != nil {
		view, err := h.engine.GetLive(ctx, ref)
		if err != nil {
			return err
		}
		var fields ir.Fields
		if view != nil {
			fields = view.Fields
		}
		failures = append(failures, matchFields("live", fields, ex.Live)...)
	}

	if ex.Effective != nil {
		fields, err := h.engine.GetEffectiveState(ctx, ref)
		if err != nil {
			return err
		}
		failures = append(failures, matchFields("effective", fields, ex.Effective)...)
	}

	if ex.Pending != "" {
		open, err := h.engine.GetPending(ctx, ref)
		if err != nil {
			return err
		}
		got := "none"
		if open != nil {
			got = string(open.Status)
		}
		if got != ex.Pending {
			fail("pending: want %s, got %s", ex.Pending, got)
		}
	}

	if ex.Sandbox != nil {
		sandboxFailures, err := h.checkSandbox(ctx, ex.Sandbox)
		if err != nil {
			return err
		}
		failures = append(failures, sandboxFailures...)
	}

	if len(failures) > 0 {
		return &ExpectationError{Record: ref.Key(), Failures: failures}
	}
	return nil
}

func (h *Harness) checkSandbox(ctx context.Context, want *SandboxExpect) ([]string, error) {
	sb, err := h.engine.GetSandbox(ctx, want.ID)
	if err != nil {
		return nil, err
	}
	if want.Deleted {
		if sb != nil {
			return []string{fmt.Sprintf("sandbox %s: want deleted, found %s", want.ID, sb.Status)}, nil
		}
		return nil, nil
	}
	if sb == nil {
		return []string{fmt.Sprintf("sandbox %s: not found", want.ID)}, nil
	}

	var failures []string
	check := func(name, want, got string) {
		if want != "" && want != got {
			failures = append(failures, fmt.Sprintf("sandbox %s %s: want %q, got %q", sb.ID, name, want, got))
		}
	}
	check("status", want.Status, string(sb.Status))
	check("resolved_by", want.ResolvedBy, string(sb.ResolvedBy))
	check("rule", want.Rule, sb.Rule)
	check("reason", want.Reason, sb.Reason)
	return failures, nil
}

// matchFields checks that actual contains every expected field with an
// equal value (subset match). Extra fields in actual are ignored.
func matchFields(label string, actual ir.Fields, expected map[string]any) []string {
	var failures []string
	for _, key := range slices.Sorted(maps.Keys(expected)) {
		want, err := ir.FromAny(expected[key])
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s.%s: %v", label, key, err))
			continue
		}
		got, ok := actual[key]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s.%s: missing, want %s", label, key, render(want)))
			continue
		}
		if !ir.Equal(got, want) {
			failures = append(failures, fmt.Sprintf("%s.%s: want %s, got %s", label, key, render(want), render(got)))
		}
	}
	return failures
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
