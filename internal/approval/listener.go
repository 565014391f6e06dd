package approval

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roach88/approval/internal/ir"
)

// EventKind names a committed lifecycle transition.
type EventKind string

const (
	// EventDrafted: a sandbox was created or updated in Draft.
	EventDrafted EventKind = "drafted"
	// EventSubmitted: a sandbox entered or stayed Pending with new values.
	EventSubmitted EventKind = "submitted"
	// EventStored: stored or untracked fields were written without staging.
	EventStored EventKind = "stored"
	// EventApproved: a sandbox was approved and merged.
	EventApproved EventKind = "approved"
	// EventDenied: a sandbox was denied.
	EventDenied EventKind = "denied"
)

// Event describes one committed transition. Listeners only ever see
// transitions that were persisted.
type Event struct {
	// Seq orders events within one engine instance and restarts with it.
	Seq       int64         `json:"seq"`
	Kind      EventKind     `json:"kind"`
	Ref       ir.RecordRef  `json:"ref"`
	SandboxID string        `json:"sandbox_id,omitempty"`
	// Revision is the sandbox revision committed with the event. It is
	// persisted, so it orders a sandbox's events across processes.
	Revision  int64         `json:"revision,omitempty"`
	Status    ir.Status     `json:"status,omitempty"`
	// Entered is set when this event moved the sandbox into Status.
	Entered   bool          `json:"entered,omitempty"`
	Fields    []string      `json:"fields,omitempty"`
	Authors   ir.Identities `json:"authors,omitempty"`
	Actor     ir.Identity   `json:"actor,omitempty"`
	Rule      string        `json:"rule,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Time      time.Time     `json:"time"`
}

// Listener receives events after commit. Errors are logged, never returned
// to the engine's caller: the transition has already happened.
//
// HandleEvent runs while the engine holds the record's lock, so it must not
// call back into the engine.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Recorder is a Listener that keeps every event in memory.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// HandleEvent appends ev.
func (r *Recorder) HandleEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events in delivery order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}
