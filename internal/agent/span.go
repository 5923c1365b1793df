package agent

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanemc/observability-kit/internal/domain"
)

// Span is an in-flight traced operation. A nil *Span is a valid no-op
// span, returned when tracing is disabled or the sample decision rejects.
type Span struct {
	agent   *Agent
	traceID string
	spanID  string
	name    string
	start   time.Time

	mu    sync.Mutex
	tags  map[string]string
	logs  []domain.SpanLog
	ended bool
}

// StartSpan begins a traced operation.
func (a *Agent) StartSpan(name string, tags map[string]string) *Span {
	if !a.cfg.EnableTracing {
		return nil
	}
	if a.cfg.SampleRate < 1 && rand.Float64() >= a.cfg.SampleRate {
		return nil
	}
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	return &Span{
		agent:   a,
		traceID: uuid.NewString(),
		spanID:  uuid.NewString(),
		name:    name,
		start:   time.Now(),
		tags:    copied,
	}
}

// SetTag attaches a tag to the span.
func (s *Span) SetTag(key, value string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.tags[key] = value
	s.mu.Unlock()
}

// Log appends a timestamped annotation.
func (s *Span) Log(fields map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.logs = append(s.logs, domain.SpanLog{Timestamp: time.Now(), Fields: fields})
	s.mu.Unlock()
}

// End completes the span and records the trace. Subsequent calls are
// no-ops.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	tags := s.tags
	logs := s.logs
	s.mu.Unlock()

	end := time.Now()
	s.agent.store.RecordTrace(domain.TraceRecord{
		ID:            uuid.NewString(),
		TraceID:       s.traceID,
		SpanID:        s.spanID,
		OperationName: s.name,
		StartTime:     s.start,
		EndTime:       end,
		DurationMS:    float64(end.Sub(s.start).Microseconds()) / 1000,
		Tags:          tags,
		Logs:          logs,
	})
}
