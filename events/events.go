package events

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Event is one append-only audit entry. Fields carry small string facts
// (contract id, milestone id, amounts) for external indexers.
type Event struct {
	Topic  string
	Fields map[string]string
	At     time.Time
}

// Sink receives audit events. Emission is best-effort observability; it must
// never affect operation outcome.
type Sink interface {
	Emit(ctx context.Context, topic string, fields map[string]string)
}

// LogSink writes events to a standard logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink wraps a logger as an event sink.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, topic string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("event=")
	b.WriteString(topic)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(fields[k])
	}
	s.logger.Print(b.String())
}

// Memory collects events in order; used by tests to assert emission.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Emit(_ context.Context, topic string, fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Topic: topic, Fields: fields, At: time.Now()})
}

// Events returns a snapshot of everything emitted so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Topics returns the emitted topics in order.
func (m *Memory) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Topic
	}
	return out
}
