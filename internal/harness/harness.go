package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/approval/internal/approval"
	"github.com/roach88/approval/internal/authz"
	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/store"
	"github.com/roach88/approval/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and sandbox IDs.
type Harness struct {
	store    *store.Store
	engine   *approval.Engine
	recorder *approval.Recorder
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Register the scenario's models with casbin-backed staff and forbidden checks
// 3. Execute steps, checking expected errors and expectations
// 4. Return result with pass/fail, trace, and errors
//
// An error is returned only when the scenario cannot be set up; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}

	for _, ev := range h.recorder.Events() {
		result.Trace = append(result.Trace, NewTraceEvent(ev))
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	az, err := authz.New()
	if err != nil {
		return nil, err
	}
	for _, id := range scenario.Staff {
		if err := az.Grant(id); err != nil {
			return nil, fmt.Errorf("grant %s: %w", id, err)
		}
	}
	for _, id := range scenario.Forbidden {
		if err := az.Forbid(id, "*"); err != nil {
			return nil, fmt.Errorf("forbid %s: %w", id, err)
		}
	}

	registry := approval.NewRegistry()
	for _, m := range scenario.Models {
		cfg, err := m.Config()
		if err != nil {
			return nil, err
		}
		hooks := approval.Hooks{
			Authors:   approval.ActorAuthors(),
			Privilege: az,
			Forbidden: az,
		}
		if cfg.AuthorsField != "" {
			hooks.Authors = approval.FieldAuthors(cfg.AuthorsField)
		}
		if err := registry.Register(cfg, hooks); err != nil {
			return nil, fmt.Errorf("register %s: %w", cfg.Type, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	recorder := &approval.Recorder{}
	eng := approval.New(st, registry,
		approval.WithIDGenerator(testutil.NewSequentialIDs("sb")),
		approval.WithNow(testutil.NewStepClock(testutil.Epoch, 0).Now),
		approval.WithLogger(logger),
		approval.WithListener(recorder),
	)

	return &Harness{
		store:    st,
		engine:   eng,
		recorder: recorder,
	}, nil
}

// executeStep runs one step. The returned error describes a failed
// expectation.
func (h *Harness) executeStep(ctx context.Context, st Step) error {
	switch {
	case st.Submit != nil:
		s := st.Submit
		candidate, err := toFields(s.Fields)
		if err != nil {
			return err
		}
		var opts []approval.SubmitOption
		if s.Draft {
			opts = append(opts, approval.AsDraft())
		}
		_, err = h.engine.SubmitChange(withActor(ctx, s.Actor), ir.RecordRef{Type: s.Type, ID: s.ID}, candidate, opts...)
		return checkError("submit", s.Error, err)

	case st.SubmitDraft != nil:
		s := st.SubmitDraft
		_, err := h.engine.Submit(withActor(ctx, s.Actor), s.Sandbox)
		return checkError("submit_draft", s.Error, err)

	case st.Resolve != nil:
		s := st.Resolve
		_, err := h.engine.Resolve(ctx, s.Sandbox, ir.Decision(s.Decision), ir.Identity(s.Resolver), s.Reason)
		return checkError("resolve", s.Error, err)

	case st.Expect != nil:
		return h.checkExpect(ctx, st.Expect)
	}
	return nil
}

func withActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return approval.WithActor(ctx, ir.Identity(actor))
}

// checkError compares an engine error against the expected kind.
func checkError(op, want string, err error) error {
	got := errorKind(err)
	if got == want {
		return nil
	}
	if want == "" {
		return fmt.Errorf("%s: unexpected error: %v", op, err)
	}
	if err == nil {
		return fmt.Errorf("%s: expected %s error, got success", op, want)
	}
	return fmt.Errorf("%s: expected %s error, got %v", op, want, err)
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case approval.IsConfigError(err):
		return ErrorConfig
	case approval.IsInvalidStateError(err):
		return ErrorInvalidState
	case approval.IsCommitFailure(err):
		return ErrorCommitFailure
	case approval.IsAuthorResolutionError(err):
		return ErrorAuthorResolution
	case approval.IsRuleEvaluationError(err):
		return ErrorRuleEvaluation
	default:
		return "unknown"
	}
}
