// Package events delivers pipeline stage transitions to whoever renders or
// stores them.
package events

import (
	"context"
	"sync"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

// Discard drops every event.
type Discard struct{}

// Emit implements domain.EventSink.
func (Discard) Emit(context.Context, domain.StageEvent) {}

// Func adapts a plain function to domain.EventSink.
type Func func(ctx context.Context, event domain.StageEvent)

// Emit implements domain.EventSink.
func (f Func) Emit(ctx context.Context, event domain.StageEvent) {
	f(ctx, event)
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink logging through logger.
func NewLogSink(logger *observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.Nop()
	}
	return &LogSink{logger: logger.WithOperation("events")}
}

// Emit implements domain.EventSink.
func (s *LogSink) Emit(_ context.Context, event domain.StageEvent) {
	ev := s.logger.Info()
	if event.Stage == domain.StageFailed {
		ev = s.logger.Warn().Str("reason", string(event.Reason))
	}
	ev.Str("job_id", event.JobID.String()).
		Str("source", event.Source).
		Str("stage", string(event.Stage)).
		Msg(event.String())
}

// Multi fans every event out to all sinks in order.
type Multi struct {
	mu    sync.RWMutex
	sinks []domain.EventSink
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(sinks ...domain.EventSink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends a sink.
func (m *Multi) Add(sink domain.EventSink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, sink)
	m.mu.Unlock()
}

// Emit implements domain.EventSink.
func (m *Multi) Emit(ctx context.Context, event domain.StageEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Emit(ctx, event)
	}
}
