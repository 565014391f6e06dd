package approval

import (
	"context"
	"fmt"

	"github.com/roach88/approval/internal/ir"
)

// GetPending returns the open (Draft or Pending) sandbox of ref, or nil.
func (e *Engine) GetPending(ctx context.Context, ref ir.RecordRef) (*ir.SandboxRecord, error) {
	if _, err := e.registry.Lookup(ref.Type); err != nil {
		return nil, err
	}
	sb, err := e.store.ReadOpenSandbox(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read open sandbox %s: %w", ref.Key(), err)
	}
	return sb, nil
}

// GetSandbox returns a sandbox by ID, or nil.
func (e *Engine) GetSandbox(ctx context.Context, sandboxID string) (*ir.SandboxRecord, error) {
	sb, err := e.store.ReadSandbox(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("read sandbox %s: %w", sandboxID, err)
	}
	return sb, nil
}

// GetEffectiveState returns ref as its editors see it: live fields
// overridden by the open sandbox, with the default overlay on top while the
// record has never been approved. An unknown record yields empty fields.
func (e *Engine) GetEffectiveState(ctx context.Context, ref ir.RecordRef) (ir.Fields, error) {
	model, err := e.registry.Lookup(ref.Type)
	if err != nil {
		return nil, err
	}
	live, err := e.store.ReadLive(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read live %s: %w", ref.Key(), err)
	}
	open, err := e.store.ReadOpenSandbox(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read open sandbox %s: %w", ref.Key(), err)
	}
	return Project(&model.Config, live, open), nil
}

// GetLive returns the public view of ref: persisted fields with the default
// overlay applied, never staged values. Returns nil for an unknown record.
func (e *Engine) GetLive(ctx context.Context, ref ir.RecordRef) (*ir.LiveRecord, error) {
	model, err := e.registry.Lookup(ref.Type)
	if err != nil {
		return nil, err
	}
	live, err := e.store.ReadLive(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read live %s: %w", ref.Key(), err)
	}
	if live == nil {
		return nil, nil
	}
	view := live.Clone()
	view.Fields = Project(&model.Config, live, nil)
	return view, nil
}
