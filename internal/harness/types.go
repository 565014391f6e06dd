package harness

import (
	"github.com/roach88/approval/internal/approval"
)

// TraceEvent is one committed engine event as recorded in a trace.
// Timestamps are left out so traces only change when behaviour does.
type TraceEvent struct {
	Seq     int64    `json:"seq"`
	Kind    string   `json:"kind"`
	Record  string   `json:"record"`
	Sandbox string   `json:"sandbox,omitempty"`
	Status  string   `json:"status,omitempty"`
	Entered bool     `json:"entered,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Actor   string   `json:"actor,omitempty"`
	Rule    string   `json:"rule,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// NewTraceEvent converts an engine event.
func NewTraceEvent(ev approval.Event) TraceEvent {
	te := TraceEvent{
		Seq:     ev.Seq,
		Kind:    string(ev.Kind),
		Record:  ev.Ref.Key(),
		Sandbox: ev.SandboxID,
		Status:  string(ev.Status),
		Entered: ev.Entered,
		Fields:  ev.Fields,
		Actor:   string(ev.Actor),
		Rule:    ev.Rule,
		Reason:  ev.Reason,
	}
	for _, a := range ev.Authors {
		te.Authors = append(te.Authors, string(a))
	}
	return te
}

// canonical returns the event as a map for ir.MarshalCanonical, omitting
// empty members.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":    e.Seq,
		"kind":   e.Kind,
		"record": e.Record,
	}
	if e.Sandbox != "" {
		m["sandbox"] = e.Sandbox
	}
	if e.Status != "" {
		m["status"] = e.Status
	}
	if e.Entered {
		m["entered"] = true
	}
	if len(e.Fields) > 0 {
		m["fields"] = stringsToAny(e.Fields)
	}
	if len(e.Authors) > 0 {
		m["authors"] = stringsToAny(e.Authors)
	}
	if e.Actor != "" {
		m["actor"] = e.Actor
	}
	if e.Rule != "" {
		m["rule"] = e.Rule
	}
	if e.Reason != "" {
		m["reason"] = e.Reason
	}
	return m
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation held.
	Pass bool `json:"pass"`

	// Trace contains every committed engine event in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures, prefixed with the step index.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
