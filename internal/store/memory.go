package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/approval/internal/ir"
)

// Memory is an in-process store with the same commit contract as Store.
// Records are cloned on every read and write so callers never share state
// with the store.
type Memory struct {
	mu        sync.RWMutex
	live      map[string]*ir.LiveRecord
	sandboxes map[string]*ir.SandboxRecord
	open      map[string]string // record key -> open sandbox ID
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		live:      make(map[string]*ir.LiveRecord),
		sandboxes: make(map[string]*ir.SandboxRecord),
		open:      make(map[string]string),
	}
}

func (m *Memory) ReadLive(_ context.Context, ref ir.RecordRef) (*ir.LiveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live[ref.Key()].Clone(), nil
}

func (m *Memory) ReadOpenSandbox(_ context.Context, ref ir.RecordRef) (*ir.SandboxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[ref.Key()]
	if !ok {
		return nil, nil
	}
	return m.sandboxes[id].Clone(), nil
}

func (m *Memory) ReadSandbox(_ context.Context, id string) (*ir.SandboxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sandboxes[id].Clone(), nil
}

// ListSandboxes returns sandboxes matching f ordered by creation time then ID.
func (m *Memory) ListSandboxes(_ context.Context, f Filter) ([]*ir.SandboxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ir.SandboxRecord, 0)
	for _, sb := range m.sandboxes {
		if f.Type != "" && sb.Ref.Type != f.Type {
			continue
		}
		if f.ID != "" && sb.Ref.ID != f.ID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sb.Status) {
			continue
		}
		out = append(out, sb.Clone())
	}
	slices.SortFunc(out, func(a, b *ir.SandboxRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Write(ctx context.Context, op ir.Op) error {
	return m.AtomicCommit(ctx, []ir.Op{op})
}

// AtomicCommit validates every op against current state before applying any.
func (m *Memory) AtomicCommit(_ context.Context, ops []ir.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate against a scratch view so later ops see earlier ones.
	live := make(map[string]int64)
	revs := make(map[string]int64)
	deleted := make(map[string]bool)
	openBy := make(map[string]string)

	liveVersion := func(key string) int64 {
		if v, ok := live[key]; ok {
			return v
		}
		if l, ok := m.live[key]; ok {
			return l.Version
		}
		return 0
	}
	sandboxRevision := func(id string) int64 {
		if deleted[id] {
			return 0
		}
		if r, ok := revs[id]; ok {
			return r
		}
		if sb, ok := m.sandboxes[id]; ok {
			return sb.Revision
		}
		return 0
	}
	openFor := func(key string) string {
		if id, ok := openBy[key]; ok {
			return id
		}
		return m.open[key]
	}

	for i, op := range ops {
		if err := m.check(op, liveVersion, sandboxRevision, openFor); err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.Ref(), err)
		}
		switch op.Kind {
		case ir.OpPutLive:
			live[op.Live.Ref.Key()] = op.Live.Version
		case ir.OpPutSandbox:
			revs[op.Sandbox.ID] = op.Sandbox.Revision
			delete(deleted, op.Sandbox.ID)
			key := op.Sandbox.Ref.Key()
			if op.Sandbox.Status.Open() {
				openBy[key] = op.Sandbox.ID
			} else if openFor(key) == op.Sandbox.ID {
				openBy[key] = ""
			}
		case ir.OpDeleteSandbox:
			deleted[op.Sandbox.ID] = true
			key := op.Sandbox.Ref.Key()
			if openFor(key) == op.Sandbox.ID {
				openBy[key] = ""
			}
		}
	}

	for _, op := range ops {
		m.apply(op)
	}
	return nil
}

func (m *Memory) check(op ir.Op, liveVersion func(string) int64, sandboxRevision func(string) int64, openFor func(string) string) error {
	switch op.Kind {
	case ir.OpPutLive:
		if op.Live == nil {
			return errors.New("put_live without record")
		}
		if liveVersion(op.Live.Ref.Key()) != op.Expect {
			return ErrConflict
		}
	case ir.OpPutSandbox:
		if op.Sandbox == nil {
			return errors.New("put_sandbox without record")
		}
		if sandboxRevision(op.Sandbox.ID) != op.Expect {
			return ErrConflict
		}
		if op.Sandbox.Status.Open() {
			if id := openFor(op.Sandbox.Ref.Key()); id != "" && id != op.Sandbox.ID {
				return ErrConflict
			}
		}
	case ir.OpDeleteSandbox:
		if op.Sandbox == nil {
			return errors.New("delete_sandbox without record")
		}
		if op.Expect == 0 || sandboxRevision(op.Sandbox.ID) != op.Expect {
			return ErrConflict
		}
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return nil
}

func (m *Memory) apply(op ir.Op) {
	switch op.Kind {
	case ir.OpPutLive:
		m.live[op.Live.Ref.Key()] = op.Live.Clone()
	case ir.OpPutSandbox:
		sb := op.Sandbox.Clone()
		m.sandboxes[sb.ID] = sb
		key := sb.Ref.Key()
		if sb.Status.Open() {
			m.open[key] = sb.ID
		} else if m.open[key] == sb.ID {
			delete(m.open, key)
		}
	case ir.OpDeleteSandbox:
		id := op.Sandbox.ID
		if sb, ok := m.sandboxes[id]; ok {
			if m.open[sb.Ref.Key()] == id {
				delete(m.open, sb.Ref.Key())
			}
			delete(m.sandboxes, id)
		}
	}
}
