// Package metrics provides Prometheus metrics for the approval engine.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/approval/internal/approval"
)

// Collector is an approval.Listener that counts lifecycle events.
//
// Metrics are registered on the registerer given to New so several engines
// (or tests) do not collide on the global registry.
type Collector struct {
	// EventsTotal counts committed events by record type and kind.
	EventsTotal *prometheus.CounterVec

	// ResolutionsTotal counts approvals and denials by resolver kind
	// ("policy" or "moderator") and rule.
	ResolutionsTotal *prometheus.CounterVec

	// PendingSandboxes tracks sandboxes waiting for a moderator.
	PendingSandboxes *prometheus.GaugeVec

	// LastSeq is the sequence of the last event seen.
	LastSeq prometheus.Gauge
}

// New registers the approval metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "approval",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Total number of committed lifecycle events by record type and kind",
			},
			[]string{"record_type", "kind"},
		),
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "approval",
				Subsystem: "engine",
				Name:      "resolutions_total",
				Help:      "Total number of sandbox resolutions by outcome and resolver",
			},
			[]string{"record_type", "status", "resolver", "rule"},
		),
		PendingSandboxes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "approval",
				Subsystem: "sandbox",
				Name:      "pending",
				Help:      "Number of sandboxes awaiting moderation",
			},
			[]string{"record_type"},
		),
		LastSeq: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "approval",
				Subsystem: "engine",
				Name:      "last_event_seq",
				Help:      "Logical sequence of the last committed event",
			},
		),
	}
}

// HandleEvent updates the metrics for ev. Implements approval.Listener.
func (c *Collector) HandleEvent(_ context.Context, ev approval.Event) error {
	typ := ev.Ref.Type
	c.EventsTotal.WithLabelValues(typ, string(ev.Kind)).Inc()
	c.LastSeq.Set(float64(ev.Seq))

	switch ev.Kind {
	case approval.EventSubmitted:
		// Edits to an already pending sandbox repeat this event.
		if ev.Entered {
			c.PendingSandboxes.WithLabelValues(typ).Inc()
		}
	case approval.EventApproved, approval.EventDenied:
		resolver := "moderator"
		if ev.Rule != "" {
			resolver = "policy"
		}
		c.ResolutionsTotal.WithLabelValues(typ, string(ev.Status), resolver, ev.Rule).Inc()
		c.PendingSandboxes.WithLabelValues(typ).Dec()
	}
	return nil
}
