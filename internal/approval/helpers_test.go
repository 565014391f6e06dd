package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/store"
)

var (
	t0    = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	post1 = ir.RecordRef{Type: "post", ID: "1"}
)

func s(v string) ir.IRValue { return ir.NewIRString(v) }

// postConfig tracks title and body, stores slug, and defaults title.
func postConfig() ir.ModelConfig {
	return ir.ModelConfig{
		Type:     "post",
		Tracked:  []string{"title", "body"},
		Stored:   []string{"slug"},
		Defaults: ir.Fields{"title": s("Untitled")},
	}
}

// actorAuthors attributes every change to the actor in ctx.
var actorAuthors = AuthorResolverFunc(func(ctx context.Context, _ *ir.LiveRecord) ([]ir.Identity, error) {
	if a, ok := ActorFromContext(ctx); ok {
		return []ir.Identity{a}, nil
	}
	return nil, nil
})

type fixture struct {
	engine   *Engine
	store    *store.Memory
	recorder *Recorder
	now      time.Time
}

func newFixture(t *testing.T, cfg ir.ModelConfig, hooks Hooks, opts ...EngineOption) *fixture {
	t.Helper()
	if hooks.Authors == nil {
		hooks.Authors = actorAuthors
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(cfg, hooks))

	f := &fixture{store: store.NewMemory(), recorder: &Recorder{}, now: t0}
	base := []EngineOption{
		WithIDGenerator(NewFixedGenerator("sb-1", "sb-2", "sb-3", "sb-4", "sb-5")),
		WithNow(func() time.Time {
			f.now = f.now.Add(time.Second)
			return f.now
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithListener(f.recorder),
	}
	f.engine = New(f.store, reg, append(base, opts...)...)
	return f
}

func as(actor ir.Identity) context.Context {
	return WithActor(context.Background(), actor)
}

func (f *fixture) live(t *testing.T, ref ir.RecordRef) *ir.LiveRecord {
	t.Helper()
	l, err := f.store.ReadLive(context.Background(), ref)
	require.NoError(t, err)
	return l
}

func (f *fixture) kinds() []EventKind {
	var out []EventKind
	for _, ev := range f.recorder.Events() {
		out = append(out, ev.Kind)
	}
	return out
}

// seedApproved writes an approved live record directly.
func (f *fixture) seedApproved(t *testing.T, ref ir.RecordRef, fields ir.Fields) {
	t.Helper()
	require.NoError(t, f.store.Write(context.Background(), ir.PutLive(&ir.LiveRecord{
		Ref:       ref,
		Fields:    fields,
		Approved:  true,
		Version:   1,
		CreatedAt: t0,
		UpdatedAt: t0,
	}, 0)))
}

var errBoom = errors.New("boom")

// failingStore fails every commit.
type failingStore struct {
	RecordStore
}

func (failingStore) Write(context.Context, ir.Op) error          { return errBoom }
func (failingStore) AtomicCommit(context.Context, []ir.Op) error { return errBoom }
