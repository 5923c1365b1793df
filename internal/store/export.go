package store

import (
	"time"

	"github.com/lanemc/observability-kit/internal/domain"
)

// Snapshot is the wholesale serialized state written by the persistence
// cycle.
type Snapshot struct {
	Metrics         map[string]MetricView       `json:"metrics"`
	CustomMetrics   map[string]CustomMetricView `json:"custom_metrics"`
	Traces          []domain.TraceRecord        `json:"traces"`
	Errors          []domain.ErrorRecord        `json:"errors"`
	RequestMetrics  []domain.RequestRecord      `json:"request_metrics"`
	ResourceMetrics []domain.ResourceSnapshot   `json:"resource_metrics"`
	Timestamp       time.Time                   `json:"timestamp"`
}

// Export copies the complete store state for persistence.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Metrics:         s.systemViewLocked(),
		CustomMetrics:   s.customViewLocked(),
		Traces:          s.traces.All(),
		Errors:          s.errors.All(),
		RequestMetrics:  s.requests.All(),
		ResourceMetrics: s.resources.All(),
		Timestamp:       s.now(),
	}
}

// Restore merges a previously persisted snapshot into the store. Capacity
// bounds still apply: restored records flow through the same FIFO append
// path, so an oversized snapshot keeps only the newest entries.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, view := range snap.Metrics {
		m, ok := s.metrics[name]
		if !ok {
			m = &metric{scalar: view.Value != nil}
			if !m.scalar {
				m.samples = newRing[domain.MetricSample](s.maxPoints)
			}
			s.metrics[name] = m
		}
		if m.scalar && view.Value != nil {
			m.value = *view.Value
		}
		if !m.scalar {
			for _, sample := range view.Values {
				m.samples.Append(sample)
			}
		}
		m.updated = view.Timestamp
	}
	for name, view := range snap.CustomMetrics {
		series, ok := s.custom[name]
		if !ok {
			series = &customSeries{
				values:     newRing[domain.MetricSample](s.maxPoints),
				attributes: make(map[string]any),
			}
			s.custom[name] = series
		}
		for _, sample := range view.Values {
			series.values.Append(sample)
		}
		for k, v := range view.Attributes {
			series.attributes[k] = v
		}
	}
	for _, rec := range snap.Traces {
		s.traces.Append(rec)
	}
	for _, rec := range snap.Errors {
		s.errors.Append(rec)
	}
	for _, rec := range snap.RequestMetrics {
		s.requests.Append(rec)
	}
	for _, rec := range snap.ResourceMetrics {
		s.resources.Append(rec)
	}
}
