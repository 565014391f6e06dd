package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/lock"
)

const tracerName = "github.com/roach88/approval/internal/approval"

// Engine runs the approval pipeline against a RecordStore.
//
// Thread-safety model:
//   - All exported methods are safe from any goroutine.
//   - Operations on the same live record are serialised through the Locker
//     and additionally guarded by the store's version checks.
//   - Operations on different live records share no mutable state except
//     event delivery, which is serialised so Seq increases in delivery order.
//   - Events are stamped and delivered before the record lock is released,
//     so a record's events reach listeners in commit order.
type Engine struct {
	store    RecordStore
	registry *Registry
	locker   Locker
	ids      IDGenerator
	clock    *Clock
	now      NowFunc
	logger   *slog.Logger
	tracer   trace.Tracer

	emitMu         sync.Mutex
	listeners      []Listener
	signalsEnabled bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLocker replaces the default in-process keyed mutex.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) { e.locker = l }
}

// WithIDGenerator sets the sandbox ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the logical clock stamping events.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithNow sets the wall-clock source for record timestamps.
func WithNow(now NowFunc) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the OpenTelemetry tracer. Default: the global provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithListener adds a listener notified after every committed transition.
func WithListener(l Listener) EngineOption {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithSignals toggles SaveHook. When disabled, hosts must call SubmitChange
// explicitly. Default: enabled.
func WithSignals(enabled bool) EngineOption {
	return func(e *Engine) { e.signalsEnabled = enabled }
}

// New creates an Engine over store for the types in registry.
func New(store RecordStore, registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:          store,
		registry:       registry,
		locker:         lock.NewKeyedMutex(),
		ids:            UUIDv7Generator{},
		clock:          NewClock(),
		now:            utcNow,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		signalsEnabled: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's model registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// withLock runs fn while holding the per-record lock for ref.
func (e *Engine) withLock(ctx context.Context, ref ir.RecordRef, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, ref.Key())
	if err != nil {
		return fmt.Errorf("lock %s: %w", ref.Key(), err)
	}
	defer unlock()
	return fn()
}

func (e *Engine) startSpan(ctx context.Context, name string, ref ir.RecordRef) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "approval."+name, trace.WithAttributes(
		attribute.String("record.type", ref.Type),
		attribute.String("record.id", ref.ID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// commit persists ops atomically. Any failure is a CommitFailure and
// nothing has been applied.
func (e *Engine) commit(ctx context.Context, ref ir.RecordRef, sandboxID string, ops []ir.Op) error {
	if len(ops) == 0 {
		return nil
	}
	var err error
	if len(ops) == 1 {
		err = e.store.Write(ctx, ops[0])
	} else {
		err = e.store.AtomicCommit(ctx, ops)
	}
	if err != nil {
		e.logger.Error("commit failed",
			"record", ref.Key(),
			"sandbox", sandboxID,
			"ops", len(ops),
			"error", err,
		)
		return newCommitFailure(ref, sandboxID, err)
	}
	return nil
}

// emit stamps committed events and delivers them to listeners in order.
// Callers hold the record lock.
func (e *Engine) emit(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	for _, ev := range events {
		ev.Seq = e.clock.Next()
		for _, l := range e.listeners {
			if err := l.HandleEvent(ctx, ev); err != nil {
				e.logger.Warn("listener failed",
					"event", ev.Kind,
					"seq", ev.Seq,
					"record", ev.Ref.Key(),
					"error", err,
				)
			}
		}
	}
}

// sandboxOps returns the op persisting sb after resolution, honouring the
// model's retention. persisted is false when sb was never written.
func sandboxOps(cfg *ir.ModelConfig, sb *ir.SandboxRecord, prevRevision int64, persisted bool) []ir.Op {
	if sb.Status.Terminal() && cfg.RetentionOrDefault() == ir.RetainNone {
		if !persisted {
			return nil
		}
		return []ir.Op{ir.DeleteSandbox(sb, prevRevision)}
	}
	return []ir.Op{ir.PutSandbox(sb, prevRevision)}
}
