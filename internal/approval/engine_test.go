package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/store"
)

func TestSubmitChange_NewRecord(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{
		"title": s("Hello"),
		"slug":  s("hello"),
		"views": ir.NewIRInt(1),
	})
	require.NoError(t, err)
	require.NotNil(t, sb)

	assert.Equal(t, "sb-1", sb.ID)
	assert.Equal(t, ir.StatusPending, sb.Status)
	assert.True(t, sb.IsNew)
	assert.Equal(t, ir.Fields{"title": s("Hello")}, sb.Pending)
	assert.Equal(t, ir.Fields{"slug": s("hello")}, sb.Stored)
	assert.Equal(t, ir.Identities{"alice"}, sb.Authors)
	assert.Equal(t, int64(1), sb.Revision)
	assert.Equal(t, ir.MustChangeDigest(post1, sb.Pending, sb.Stored), sb.Digest)

	live := f.live(t, post1)
	require.NotNil(t, live)
	assert.False(t, live.Approved)
	assert.Equal(t, int64(1), live.Version)
	assert.Equal(t, ir.Fields{"slug": s("hello"), "views": ir.NewIRInt(1)}, live.Fields)

	public, err := f.engine.GetLive(context.Background(), post1)
	require.NoError(t, err)
	assert.Equal(t, s("Untitled"), public.Fields["title"])

	assert.Equal(t, []EventKind{EventStored, EventSubmitted}, f.kinds())
}

func TestSubmitChange_RoundTrip(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)

	live, err := f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "looks good")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.True(t, live.Approved)
	assert.Equal(t, s("Hello"), live.Fields["title"])
	assert.Equal(t, int64(2), live.Version)

	public, err := f.engine.GetLive(ctx, post1)
	require.NoError(t, err)
	assert.Equal(t, s("Hello"), public.Fields["title"], "overlay gone after approval")

	resolved, err := f.engine.GetSandbox(ctx, sb.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusApproved, resolved.Status)
	assert.Empty(t, resolved.Pending)
	assert.Equal(t, sb.Digest, resolved.Digest)
	assert.Equal(t, ir.Identity("mod"), resolved.ResolvedBy)
	assert.Equal(t, "looks good", resolved.Reason)
	assert.Equal(t, int64(2), resolved.Revision)
	require.NotNil(t, resolved.ResolvedAt)

	pending, err := f.engine.GetPending(ctx, post1)
	require.NoError(t, err)
	assert.Nil(t, pending)

	evs := f.recorder.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, EventApproved, last.Kind)
	assert.Equal(t, ir.Identity("mod"), last.Actor)
	assert.Greater(t, last.Seq, evs[0].Seq)
	assert.Equal(t, int64(1), evs[0].Revision)
	assert.Equal(t, resolved.Revision, last.Revision)
}

func TestSubmitChange_NoOp(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello"), "views": ir.NewIRInt(1)})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello"), "views": ir.NewIRInt(1)})
	require.NoError(t, err)
	assert.Nil(t, sb)
	assert.Equal(t, int64(1), f.live(t, post1).Version)
	assert.Empty(t, f.recorder.Events())
}

func TestSubmitChange_NoOpReturnsOpenSandbox(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello")})

	first, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Next")})
	require.NoError(t, err)

	again, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Next")})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Revision, again.Revision)
}

func TestSubmitChange_UntrackedOnly(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello"), "views": ir.NewIRInt(1)})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"views": ir.NewIRInt(2)})
	require.NoError(t, err)
	assert.Nil(t, sb)

	live := f.live(t, post1)
	assert.Equal(t, ir.NewIRInt(2), live.Fields["views"])
	assert.Equal(t, int64(2), live.Version)
	assert.True(t, live.Approved)
	assert.Equal(t, []EventKind{EventStored}, f.kinds())
}

func TestSubmitChange_StoredCopiedIntoOpenSandbox(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello")})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Next")})
	require.NoError(t, err)

	updated, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"slug": s("next")})
	require.NoError(t, err)
	assert.Equal(t, sb.ID, updated.ID)
	assert.Equal(t, ir.Fields{"slug": s("next")}, updated.Stored)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Equal(t, s("next"), f.live(t, post1).Fields["slug"])
	assert.Equal(t, s("Hello"), f.live(t, post1).Fields["title"])
}

func TestSubmitChange_ResubmissionMerges(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello"), "body": s("old")})

	first, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("New")})
	require.NoError(t, err)

	second, err := f.engine.SubmitChange(as("bob"), post1, ir.Fields{"body": s("new")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, ir.Fields{"title": s("New"), "body": s("new")}, second.Pending)
	assert.Equal(t, ir.Identities{"alice", "bob"}, second.Authors)
	assert.Equal(t, int64(2), second.Revision)
	assert.NotEqual(t, first.Digest, second.Digest)

	effective, err := f.engine.GetEffectiveState(context.Background(), post1)
	require.NoError(t, err)
	assert.Equal(t, s("New"), effective["title"])
	assert.Equal(t, s("new"), effective["body"])

	public, err := f.engine.GetLive(context.Background(), post1)
	require.NoError(t, err)
	assert.Equal(t, s("Hello"), public.Fields["title"])
}

func TestSubmitChange_RevertToLiveKeepsSandbox(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello")})

	_, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("New")})
	require.NoError(t, err)

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	assert.Equal(t, s("Hello"), sb.Pending["title"])
	assert.Equal(t, ir.StatusPending, sb.Status)
}

func TestSubmitChange_DefaultValueIsStaged(t *testing.T) {
	cfg := ir.ModelConfig{
		Type:     "post",
		Tracked:  []string{"body", "published"},
		Defaults: ir.Fields{"published": ir.NewIRBool(false)},
	}
	f := newFixture(t, cfg, Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"body": s("x"), "published": ir.NewIRBool(true)})
	require.NoError(t, err)

	updated, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"published": ir.NewIRBool(false)})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, sb.ID, updated.ID)
	assert.Equal(t, ir.NewIRBool(false), updated.Pending["published"])
	assert.Equal(t, sb.Revision+1, updated.Revision)

	live, err := f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	require.NoError(t, err)
	assert.Equal(t, ir.NewIRBool(false), live.Fields["published"])
	assert.Equal(t, s("x"), live.Fields["body"])
}

func TestResolve_Deny(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Spam"), "slug": s("spam")})
	require.NoError(t, err)

	live, err := f.engine.Resolve(ctx, sb.ID, ir.DecisionDeny, "mod", "spam")
	require.NoError(t, err)
	assert.Nil(t, live)

	persisted := f.live(t, post1)
	assert.False(t, persisted.Approved)
	assert.NotContains(t, persisted.Fields, "title")
	assert.Equal(t, s("spam"), persisted.Fields["slug"], "stored values survive denial")

	public, err := f.engine.GetLive(ctx, post1)
	require.NoError(t, err)
	assert.Equal(t, s("Untitled"), public.Fields["title"], "overlay survives denial")

	denied, err := f.engine.GetSandbox(ctx, sb.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusDenied, denied.Status)
	assert.Equal(t, "spam", denied.Reason)
}

func TestResolve_Twice(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	require.NoError(t, err)
	version := f.live(t, post1).Version

	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	assert.True(t, IsInvalidStateError(err))
	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionDeny, "mod", "")
	assert.True(t, IsInvalidStateError(err))
	assert.Equal(t, version, f.live(t, post1).Version)
}

func TestResolve_InvalidInput(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")

	_, err := f.engine.Resolve(ctx, "missing", ir.DecisionApprove, "mod", "")
	assert.True(t, IsInvalidStateError(err))

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionNoDecision, "mod", "")
	assert.True(t, IsInvalidStateError(err))
}

func TestResolve_DraftRejected(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")}, AsDraft())
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	assert.True(t, IsInvalidStateError(err))
}

func TestDrafts(t *testing.T) {
	cfg := postConfig()
	cfg.AutoApproveNew = true
	f := newFixture(t, cfg, Hooks{})
	ctx := as("alice")

	draft, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")}, AsDraft())
	require.NoError(t, err)
	assert.Equal(t, ir.StatusDraft, draft.Status, "policy does not run on drafts")

	draft, err = f.engine.SubmitChange(ctx, post1, ir.Fields{"body": s("text")}, AsDraft())
	require.NoError(t, err)
	assert.Equal(t, ir.StatusDraft, draft.Status)
	assert.Len(t, draft.Pending, 2)

	submitted, err := f.engine.Submit(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusApproved, submitted.Status)
	assert.Equal(t, RuleNewRecord, submitted.Rule)
	assert.Equal(t, ir.SystemPolicy, submitted.ResolvedBy)

	live := f.live(t, post1)
	assert.True(t, live.Approved)
	assert.Equal(t, s("text"), live.Fields["body"])

	_, err = f.engine.Submit(ctx, draft.ID)
	assert.True(t, IsInvalidStateError(err))

	assert.Equal(t, []EventKind{EventDrafted, EventDrafted, EventSubmitted, EventApproved}, f.kinds())
}

func TestDraft_NonDraftSubmissionMovesToPending(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	f.seedApproved(t, post1, ir.Fields{"title": s("Hello")})
	ctx := as("alice")

	draft, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("A")}, AsDraft())
	require.NoError(t, err)

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"body": s("B")})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, sb.ID)
	assert.Equal(t, ir.StatusPending, sb.Status)
}

func TestSubmit_Missing(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	_, err := f.engine.Submit(context.Background(), "nope")
	assert.True(t, IsInvalidStateError(err))
}

func TestRetentionDelete(t *testing.T) {
	cfg := postConfig()
	cfg.Retention = ir.RetainNone
	f := newFixture(t, cfg, Hooks{})
	ctx := as("alice")

	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	_, err = f.engine.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	require.NoError(t, err)

	gone, err := f.engine.GetSandbox(ctx, sb.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.True(t, f.live(t, post1).Approved)
}

func TestRetentionDelete_PolicyResolvedNeverPersisted(t *testing.T) {
	cfg := postConfig()
	cfg.Retention = ir.RetainNone
	cfg.AutoApproveNew = true
	f := newFixture(t, cfg, Hooks{})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	assert.Equal(t, ir.StatusApproved, sb.Status)

	gone, err := f.engine.GetSandbox(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, s("Hello"), f.live(t, post1).Fields["title"])
}

func TestCommitFailure(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(postConfig(), Hooks{Authors: actorAuthors}))
	mem := store.NewMemory()
	e := New(failingStore{RecordStore: mem}, reg)

	_, err := e.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	require.Error(t, err)
	assert.True(t, IsCommitFailure(err))
	assert.True(t, errors.Is(err, errBoom))

	live, err := mem.ReadLive(context.Background(), post1)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestCommitFailure_StoreConflict(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ctx := as("alice")
	sb, err := f.engine.SubmitChange(ctx, post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)

	// Another writer bumps the sandbox behind the engine's back.
	bumped := sb.Clone()
	bumped.Revision = 2
	require.NoError(t, f.store.Write(context.Background(), ir.PutSandbox(bumped, 1)))

	stale := &staleStore{Memory: f.store, sandbox: sb}
	e := New(stale, f.engine.Registry())
	_, err = e.Resolve(ctx, sb.ID, ir.DecisionApprove, "mod", "")
	assert.True(t, IsCommitFailure(err))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.False(t, f.live(t, post1).Approved)
}

// staleStore serves an outdated sandbox to force a version conflict.
type staleStore struct {
	*store.Memory
	sandbox *ir.SandboxRecord
}

func (s *staleStore) ReadSandbox(context.Context, string) (*ir.SandboxRecord, error) {
	return s.sandbox.Clone(), nil
}

func TestAuthorResolutionFailureKeepsPending(t *testing.T) {
	cfg := postConfig()
	cfg.AutoApproveNew = true
	f := newFixture(t, cfg, Hooks{
		Authors: AuthorResolverFunc(func(context.Context, *ir.LiveRecord) ([]ir.Identity, error) {
			return nil, errBoom
		}),
	})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	require.Error(t, err)
	assert.True(t, IsAuthorResolutionError(err))
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, sb)
	assert.Equal(t, ir.StatusPending, sb.Status, "policy skipped")

	open, err := f.engine.GetPending(context.Background(), post1)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, sb.ID, open.ID)
}

func TestPrivilegeFailureKeepsPending(t *testing.T) {
	cfg := postConfig()
	cfg.AutoApproveStaff = true
	f := newFixture(t, cfg, Hooks{Privilege: failingChecker{}})

	sb, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	assert.True(t, IsAuthorResolutionError(err))
	require.NotNil(t, sb)
	assert.Equal(t, ir.StatusPending, sb.Status)
}

type failingChecker struct{}

func (failingChecker) IsPrivileged(context.Context, ir.Identity) (bool, error) {
	return false, errBoom
}

func TestSaveHook(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, postConfig(), Hooks{})
		hook := f.engine.SaveHook()
		assert.True(t, hook.Enabled())

		sb, err := hook.OnSave(as("alice"), post1, ir.Fields{"title": s("Hello")})
		require.NoError(t, err)
		assert.NotNil(t, sb)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, postConfig(), Hooks{}, WithSignals(false))
		hook := f.engine.SaveHook()
		assert.False(t, hook.Enabled())

		sb, err := hook.OnSave(as("alice"), post1, ir.Fields{"title": s("Hello")})
		require.NoError(t, err)
		assert.Nil(t, sb)
		assert.Nil(t, f.live(t, post1))

		// Explicit invocation still works.
		sb, err = f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
		require.NoError(t, err)
		assert.NotNil(t, sb)
	})
}

func TestUnregisteredType(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	ref := ir.RecordRef{Type: "comment", ID: "1"}

	_, err := f.engine.SubmitChange(as("alice"), ref, ir.Fields{"x": s("y")})
	assert.True(t, IsConfigError(err))
	_, err = f.engine.GetPending(context.Background(), ref)
	assert.True(t, IsConfigError(err))
	_, err = f.engine.GetEffectiveState(context.Background(), ref)
	assert.True(t, IsConfigError(err))
}

func TestGetEffectiveState_Unknown(t *testing.T) {
	f := newFixture(t, postConfig(), Hooks{})
	state, err := f.engine.GetEffectiveState(context.Background(), post1)
	require.NoError(t, err)
	assert.Empty(t, state)

	live, err := f.engine.GetLive(context.Background(), post1)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestListenerErrorDoesNotFailOperation(t *testing.T) {
	failing := ListenerFunc(func(context.Context, Event) error { return errBoom })
	f := newFixture(t, postConfig(), Hooks{}, WithListener(failing))

	_, err := f.engine.SubmitChange(as("alice"), post1, ir.Fields{"title": s("Hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, f.recorder.Events())
}

func TestConcurrentSubmissions(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(postConfig(), Hooks{Authors: actorAuthors}))
	mem := store.NewMemory()
	e := New(mem, reg)
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, ir.PutLive(&ir.LiveRecord{
		Ref: post1, Fields: ir.Fields{"title": s("Hello")}, Approved: true, Version: 1,
	}, 0)))

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := ir.Identity(fmt.Sprintf("user-%d", i))
			_, err := e.SubmitChange(WithActor(ctx, actor), post1, ir.Fields{"title": s(fmt.Sprintf("t%d", i))})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	sandboxes, err := mem.ListSandboxes(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, sandboxes, 1, "one open sandbox per record")
	sb := sandboxes[0]
	assert.Equal(t, int64(n), sb.Revision)
	assert.Len(t, sb.Authors, n)
	assert.Contains(t, sb.Pending, "title")
}

func TestEventsDeliveredInCommitOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(postConfig(), Hooks{Authors: actorAuthors}))
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, ir.PutLive(&ir.LiveRecord{
		Ref: post1, Fields: ir.Fields{"title": s("Hello")}, Approved: true, Version: 1,
	}, 0)))

	var (
		mu        sync.Mutex
		seqs      []int64
		revisions []int64
	)
	observe := ListenerFunc(func(ctx context.Context, ev Event) error {
		if ev.Kind != EventSubmitted {
			return nil
		}
		sb, err := mem.ReadOpenSandbox(ctx, ev.Ref)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, ev.Seq)
		revisions = append(revisions, sb.Revision)
		return nil
	})
	e := New(mem, reg, WithListener(observe))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := ir.Identity(fmt.Sprintf("user-%d", i))
			_, err := e.SubmitChange(WithActor(ctx, actor), post1, ir.Fields{"title": s(fmt.Sprintf("t%d", i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, seqs, n)
	for i := range seqs {
		assert.Equal(t, int64(i+1), revisions[i], "delivery %d saw a later commit", i)
		if i > 0 {
			assert.Greater(t, seqs[i], seqs[i-1])
		}
	}
}
