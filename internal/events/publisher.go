// Package events publishes committed approval lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/approval/internal/approval"
)

const tracerName = "github.com/roach88/approval/internal/events"

// DefaultTopic receives every event unless Config.Topic is set.
const DefaultTopic = "approval.events"

// Config holds Kafka configuration.
type Config struct {
	Brokers []string
	Topic   string
}

// ParseConfig parses a comma-separated broker string.
func ParseConfig(brokers, topic string) Config {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return Config{Brokers: list, Topic: topic}
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON payload of one event.
//
// Seq is only ordered within the publishing process; every CLI invocation
// starts again at 1. Consumers order a record's messages by partition offset
// and a sandbox's messages by Revision.
type Message struct {
	Seq        int64     `json:"seq"`
	Kind       string    `json:"kind"`
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	SandboxID  string    `json:"sandbox_id,omitempty"`
	Revision   int64     `json:"revision,omitempty"`
	Status     string    `json:"status,omitempty"`
	Fields     []string  `json:"fields,omitempty"`
	Authors    []string  `json:"authors,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// NewMessage converts an engine event into its wire form.
func NewMessage(ev approval.Event) Message {
	authors := make([]string, len(ev.Authors))
	for i, a := range ev.Authors {
		authors[i] = string(a)
	}
	return Message{
		Seq:        ev.Seq,
		Kind:       string(ev.Kind),
		RecordType: ev.Ref.Type,
		RecordID:   ev.Ref.ID,
		SandboxID:  ev.SandboxID,
		Revision:   ev.Revision,
		Status:     string(ev.Status),
		Fields:     ev.Fields,
		Authors:    authors,
		Actor:      string(ev.Actor),
		Rule:       ev.Rule,
		Reason:     ev.Reason,
		Timestamp:  ev.Time,
	}
}

// Publisher is an approval.Listener writing events to a Kafka topic.
// Messages are keyed by record so every event of a record lands on the same
// partition in commit order.
type Publisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPublisher creates a publisher over a synchronous kafka.Writer.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(writer, cfg.Topic, logger)
}

// NewPublisherWithWriter creates a publisher over any MessageWriter.
func NewPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// HandleEvent publishes ev. Implements approval.Listener.
func (p *Publisher) HandleEvent(ctx context.Context, ev approval.Event) error {
	ctx, span := p.tracer.Start(ctx, "events.Publish", trace.WithAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("record.key", ev.Ref.Key()),
	))
	defer span.End()

	msg := NewMessage(ev)
	if sc := span.SpanContext(); sc.IsValid() {
		msg.TraceID = sc.TraceID().String()
		msg.SpanID = sc.SpanID().String()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "kind", Value: []byte(msg.Kind)},
		{Key: "record_type", Value: []byte(msg.RecordType)},
		{Key: "seq", Value: []byte(fmt.Sprintf("%d", msg.Seq))},
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	for _, k := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.Ref.Key()),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.Error("failed to publish event", "topic", p.topic, "seq", msg.Seq, "error", err)
		return fmt.Errorf("publish event %d: %w", msg.Seq, err)
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.Debug("published event", "topic", p.topic, "kind", msg.Kind, "record", ev.Ref.Key(), "seq", msg.Seq)
	return nil
}
