package approval

import (
	"context"

	"github.com/roach88/approval/internal/ir"
)

// SaveHook is the entry point for hosts that trigger the pipeline implicitly
// from their own save path. It does nothing while signals are disabled.
type SaveHook struct {
	engine *Engine
}

// SaveHook returns the engine's save hook.
func (e *Engine) SaveHook() *SaveHook {
	return &SaveHook{engine: e}
}

// Enabled reports whether OnSave runs the pipeline.
func (h *SaveHook) Enabled() bool {
	return h.engine.signalsEnabled
}

// OnSave runs SubmitChange when signals are enabled. When they are disabled
// it returns (nil, nil) and callers must invoke SubmitChange themselves.
func (h *SaveHook) OnSave(ctx context.Context, ref ir.RecordRef, candidate ir.Fields, opts ...SubmitOption) (*ir.SandboxRecord, error) {
	if !h.engine.signalsEnabled {
		h.engine.logger.Debug("save hook skipped, signals disabled", "record", ref.Key())
		return nil, nil
	}
	return h.engine.SubmitChange(ctx, ref, candidate, opts...)
}
