package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/approval/internal/ir"
)

// SubmitOption configures one SubmitChange call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	draft bool
}

// AsDraft keeps a newly opened sandbox in Draft. The policy does not run
// until the sandbox is submitted with Engine.Submit.
func AsDraft() SubmitOption {
	return func(o *submitOptions) { o.draft = true }
}

// SubmitChange runs the pipeline for a candidate state of ref.
//
// candidate is a patch: fields it omits are left alone. Tracked changes are
// staged in the record's open sandbox (created if needed) while stored and
// untracked fields are written to the live record immediately. A candidate
// equal to the live record overlaid with the open sandbox changes nothing
// and returns the open sandbox, if any. Defaults are never part of that
// baseline.
//
// When a sandbox enters Pending the policy runs inline and may approve or
// deny it before SubmitChange returns. If a host hook fails, the sandbox is
// still committed as Pending and returned together with the
// AuthorResolutionError.
func (e *Engine) SubmitChange(ctx context.Context, ref ir.RecordRef, candidate ir.Fields, opts ...SubmitOption) (sb *ir.SandboxRecord, err error) {
	ctx, span := e.startSpan(ctx, "SubmitChange", ref)
	defer func() { endSpan(span, err) }()

	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	model, err := e.registry.Lookup(ref.Type)
	if err != nil {
		return nil, err
	}

	err = e.withLock(ctx, ref, func() error {
		var (
			events    []Event
			lockedErr error
		)
		sb, events, lockedErr = e.submitLocked(ctx, model, ref, candidate, o)
		e.emit(ctx, events)
		return lockedErr
	})
	return sb, err
}

func (e *Engine) submitLocked(ctx context.Context, model *Model, ref ir.RecordRef, candidate ir.Fields, o submitOptions) (*ir.SandboxRecord, []Event, error) {
	cfg := &model.Config

	live, err := e.store.ReadLive(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("read live %s: %w", ref.Key(), err)
	}
	open, err := e.store.ReadOpenSandbox(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("read open sandbox %s: %w", ref.Key(), err)
	}

	isNew := live == nil
	cs := Diff(Staged(live, open), candidate, cfg)
	tracked := cs.Values(cfg.IsTracked)
	stored := cs.Values(cfg.IsStored)
	untracked := changedUntracked(live, Classify(cfg, candidate).Ignored)

	if !isNew && len(tracked) == 0 && len(stored) == 0 && len(untracked) == 0 {
		e.logger.Debug("no changes", "record", ref.Key())
		return open, nil, nil
	}

	now := e.now()

	// Live record: untracked and stored values apply immediately.
	var liveNext *ir.LiveRecord
	var prevVersion int64
	if isNew {
		liveNext = &ir.LiveRecord{Ref: ref, Fields: ir.Fields{}, CreatedAt: now}
	} else {
		liveNext = live.Clone()
		prevVersion = live.Version
	}
	for k, v := range untracked {
		liveNext.Fields[k] = v
	}
	for k, v := range stored {
		liveNext.Fields[k] = v
	}
	liveChanged := isNew || len(stored) > 0 || len(untracked) > 0

	// Sandbox: tracked values are staged, stored values carried for context.
	var (
		sbNext          *ir.SandboxRecord
		prevRevision    int64
		persisted       bool
		enteringPending bool
	)
	switch {
	case len(tracked) > 0 && open != nil:
		sbNext = open.Clone()
		prevRevision, persisted = open.Revision, true
		for k, v := range tracked {
			sbNext.Pending[k] = v
		}
		for k, v := range stored {
			sbNext.Stored[k] = v
		}
		if open.Status == ir.StatusDraft && !o.draft {
			if err := transitionSandbox(sbNext, ir.StatusPending); err != nil {
				return nil, nil, err
			}
			enteringPending = true
		}
	case len(tracked) > 0:
		status := ir.StatusPending
		if o.draft {
			status = ir.StatusDraft
		}
		sbNext = &ir.SandboxRecord{
			ID:        e.ids.Generate(),
			Ref:       ref,
			Pending:   tracked,
			Stored:    stored,
			Status:    status,
			IsNew:     isNew,
			CreatedAt: now,
		}
		enteringPending = status == ir.StatusPending
	case len(stored) > 0 && open != nil:
		sbNext = open.Clone()
		prevRevision, persisted = open.Revision, true
		for k, v := range stored {
			sbNext.Stored[k] = v
		}
	}

	var hookErr error
	if sbNext != nil {
		if len(tracked) > 0 {
			hookErr = e.resolveAuthors(ctx, model, sbNext, liveNext)
		}
		if err := touchSandbox(sbNext, prevRevision, now); err != nil {
			return nil, nil, err
		}
	}

	var verdict Verdict
	if enteringPending && hookErr == nil {
		merged, v, err := e.settle(ctx, model, sbNext, liveNext, now)
		if err != nil {
			hookErr = err
		}
		verdict = v
		if merged != nil {
			liveNext = merged
			liveChanged = true
		}
	}

	var ops []ir.Op
	if liveChanged {
		liveNext.Version = prevVersion + 1
		liveNext.UpdatedAt = now
		ops = append(ops, ir.PutLive(liveNext, prevVersion))
	}
	sandboxID := ""
	if sbNext != nil {
		sandboxID = sbNext.ID
		ops = append(ops, sandboxOps(cfg, sbNext, prevRevision, persisted)...)
	}
	if err := e.commit(ctx, ref, sandboxID, ops); err != nil {
		return nil, nil, err
	}

	entered := enteringPending || (sbNext != nil && !persisted)
	events := e.submitEvents(ref, sbNext, tracked, stored, untracked, verdict, entered, now)
	e.logSubmit(ref, sbNext, open == nil, verdict)

	if sbNext == nil {
		return open, events, hookErr
	}
	return sbNext.Clone(), events, hookErr
}

// Submit moves a Draft sandbox to Pending and runs the policy.
func (e *Engine) Submit(ctx context.Context, sandboxID string) (sb *ir.SandboxRecord, err error) {
	current, err := e.store.ReadSandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("read sandbox %s: %w", sandboxID, err)
	}
	if current == nil {
		return nil, newInvalidStateError(ir.RecordRef{}, sandboxID, "sandbox not found")
	}
	ref := current.Ref

	ctx, span := e.startSpan(ctx, "Submit", ref)
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
		sb, events, lockedErr = e.submitDraftLocked(ctx, model, sandboxID)
		e.emit(ctx, events)
		return lockedErr
	})
	return sb, err
}

func (e *Engine) submitDraftLocked(ctx context.Context, model *Model, sandboxID string) (*ir.SandboxRecord, []Event, error) {
	cfg := &model.Config

	current, err := e.store.ReadSandbox(ctx, sandboxID)
	if err != nil {
		return nil, nil, fmt.Errorf("read sandbox %s: %w", sandboxID, err)
	}
	if current == nil {
		return nil, nil, newInvalidStateError(ir.RecordRef{}, sandboxID, "sandbox not found")
	}
	live, err := e.store.ReadLive(ctx, current.Ref)
	if err != nil {
		return nil, nil, fmt.Errorf("read live %s: %w", current.Ref.Key(), err)
	}

	now := e.now()
	sbNext := current.Clone()
	if err := transitionSandbox(sbNext, ir.StatusPending); err != nil {
		return nil, nil, err
	}
	if err := touchSandbox(sbNext, current.Revision, now); err != nil {
		return nil, nil, err
	}

	merged, verdict, hookErr := e.settle(ctx, model, sbNext, live, now)

	var ops []ir.Op
	if merged != nil {
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
	ops = append(ops, sandboxOps(cfg, sbNext, current.Revision, true)...)
	if err := e.commit(ctx, sbNext.Ref, sbNext.ID, ops); err != nil {
		return nil, nil, err
	}

	events := e.submitEvents(sbNext.Ref, sbNext, current.Pending, nil, nil, verdict, true, now)
	e.logSubmit(sbNext.Ref, sbNext, false, verdict)
	return sbNext.Clone(), events, hookErr
}

// settle runs the policy on sb, which has just entered Pending, and applies
// the verdict in memory. base is the live record the sandbox would merge
// into. It returns the merged live record when the policy approved.
func (e *Engine) settle(ctx context.Context, model *Model, sb *ir.SandboxRecord, base *ir.LiveRecord, now time.Time) (*ir.LiveRecord, Verdict, error) {
	verdict, err := model.Policy.Evaluate(ctx, sb, base)
	if err != nil {
		e.logger.Warn("policy evaluation failed",
			"record", sb.Ref.Key(),
			"sandbox", sb.ID,
			"error", err,
		)
		return nil, noDecision, err
	}

	switch verdict.Decision {
	case ir.DecisionApprove:
		merged, err := Apply(sb, base)
		if err != nil {
			return nil, noDecision, err
		}
		if err := resolveSandbox(sb, ir.StatusApproved, ir.SystemPolicy, "", verdict.Rule, now); err != nil {
			return nil, noDecision, err
		}
		return merged, verdict, nil
	case ir.DecisionDeny:
		if err := resolveSandbox(sb, ir.StatusDenied, ir.SystemPolicy, "", verdict.Rule, now); err != nil {
			return nil, noDecision, err
		}
		return nil, verdict, nil
	default:
		return nil, verdict, nil
	}
}

// resolveAuthors asks the host who is behind the change and unions the
// answer into sb.Authors. proposed is the live record before staging.
func (e *Engine) resolveAuthors(ctx context.Context, model *Model, sb *ir.SandboxRecord, base *ir.LiveRecord) error {
	proposed := base.Clone()
	for k, v := range sb.Pending {
		proposed.Fields[k] = ir.Clone(v)
	}

	authors, err := model.Hooks.Authors.ResolveAuthors(ctx, proposed)
	if err != nil {
		e.logger.Warn("author resolution failed",
			"record", sb.Ref.Key(),
			"sandbox", sb.ID,
			"error", err,
		)
		return newAuthorResolutionError(sb.Ref, sb.ID, "author resolver", err)
	}
	sb.Authors = sb.Authors.Union(ir.NewIdentities(authors...))
	return nil
}

// touchSandbox bumps the revision and refreshes the digest after a content
// or status change.
func touchSandbox(sb *ir.SandboxRecord, prevRevision int64, now time.Time) error {
	digest, err := ir.ChangeDigest(sb.Ref, sb.Pending, sb.Stored)
	if err != nil {
		return fmt.Errorf("digest sandbox %s: %w", sb.ID, err)
	}
	sb.Digest = digest
	sb.Revision = prevRevision + 1
	sb.UpdatedAt = now
	return nil
}

// changedUntracked keeps the untracked candidate fields that differ from the
// persisted record.
func changedUntracked(live *ir.LiveRecord, candidate ir.Fields) ir.Fields {
	out := ir.Fields{}
	for k, v := range candidate {
		if live != nil {
			if prev, ok := live.Fields[k]; ok && ir.Equal(prev, v) {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// submitEvents builds the events of one submission. entered is true when
// the sandbox was created or moved into Pending by it.
func (e *Engine) submitEvents(ref ir.RecordRef, sb *ir.SandboxRecord, tracked, stored, untracked ir.Fields, verdict Verdict, entered bool, now time.Time) []Event {
	var events []Event

	if len(stored)+len(untracked) > 0 {
		direct := ir.Fields{}
		for k, v := range stored {
			direct[k] = v
		}
		for k, v := range untracked {
			direct[k] = v
		}
		ev := Event{Kind: EventStored, Ref: ref, Fields: direct.Keys(), Time: now}
		if sb != nil {
			ev.SandboxID = sb.ID
			ev.Revision = sb.Revision
		}
		events = append(events, ev)
	}

	if sb == nil || len(tracked) == 0 {
		return events
	}

	staged := Event{
		Kind:      EventSubmitted,
		Ref:       ref,
		SandboxID: sb.ID,
		Revision:  sb.Revision,
		Status:    ir.StatusPending,
		Entered:   entered,
		Fields:    tracked.Keys(),
		Authors:   sb.Authors,
		Time:      now,
	}
	if sb.Status == ir.StatusDraft {
		staged.Kind = EventDrafted
		staged.Status = ir.StatusDraft
	}
	events = append(events, staged)

	if sb.Status.Terminal() {
		kind := EventApproved
		if sb.Status == ir.StatusDenied {
			kind = EventDenied
		}
		events = append(events, Event{
			Kind:      kind,
			Ref:       ref,
			SandboxID: sb.ID,
			Revision:  sb.Revision,
			Status:    sb.Status,
			Entered:   true,
			Authors:   sb.Authors,
			Actor:     sb.ResolvedBy,
			Rule:      verdict.Rule,
			Time:      now,
		})
	}
	return events
}

func (e *Engine) logSubmit(ref ir.RecordRef, sb *ir.SandboxRecord, created bool, verdict Verdict) {
	if sb == nil {
		e.logger.Debug("stored fields written", "record", ref.Key())
		return
	}
	msg := "sandbox updated"
	if created {
		msg = "sandbox created"
	}
	e.logger.Info(msg,
		"record", ref.Key(),
		"sandbox", sb.ID,
		"status", sb.Status,
		"revision", sb.Revision,
	)
	if verdict.Rule != "" {
		e.logger.Info("sandbox resolved by policy",
			"record", ref.Key(),
			"sandbox", sb.ID,
			"decision", verdict.Decision,
			"rule", verdict.Rule,
		)
	}
}
