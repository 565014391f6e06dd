package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/approval"
	"github.com/roach88/approval/internal/ir"
)

var _ approval.Listener = (*Publisher)(nil)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() approval.Event {
	return approval.Event{
		Seq:       7,
		Kind:      approval.EventApproved,
		Ref:       ir.RecordRef{Type: "post", ID: "1"},
		SandboxID: "sb-1",
		Revision:  3,
		Status:    ir.StatusApproved,
		Fields:    []string{"title"},
		Authors:   ir.NewIdentities("alice"),
		Actor:     "mod",
		Reason:    "ok",
		Time:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig(" a:9092, b:9092 ,", "")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.Equal(t, DefaultTopic, cfg.Topic)
}

func TestPublisher_HandleEvent(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, "approval.events", quietLogger())

	require.NoError(t, p.HandleEvent(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "post/1", string(msg.Key))

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(7), decoded.Seq)
	assert.Equal(t, int64(3), decoded.Revision)
	assert.Equal(t, "approved", decoded.Kind)
	assert.Equal(t, "post", decoded.RecordType)
	assert.Equal(t, []string{"alice"}, decoded.Authors)
	assert.Equal(t, "mod", decoded.Actor)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "approved", headers["kind"])
	assert.Equal(t, "7", headers["seq"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisherWithWriter(&fakeWriter{err: boom}, "t", quietLogger())

	err := p.HandleEvent(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
}
