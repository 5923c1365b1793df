package store

import (
	"math"
	"sort"
	"time"

	"github.com/lanemc/observability-kit/internal/domain"
)

const (
	rateWindow    = time.Minute
	summaryWindow = 5 * time.Minute
)

// percentile computes the nearest-rank percentile of ascending-sorted
// values: index = ceil(n*p)-1, clamped to [0, n-1]. An empty input yields 0.
// Nearest-rank, not interpolated.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// perMinuteLocked counts requests in the trailing one-minute window.
func (s *Store) perMinuteLocked(now time.Time) int {
	cutoff := now.Add(-rateWindow)
	count := 0
	for _, rec := range s.requests.All() {
		if rec.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// errorRateLocked computes the percentage of >=400 responses in the
// trailing five-minute window. An empty window yields 0, never NaN.
func (s *Store) errorRateLocked(now time.Time) float64 {
	cutoff := now.Add(-summaryWindow)
	total, errored := 0, 0
	for _, rec := range s.requests.All() {
		if !rec.Timestamp.After(cutoff) {
			continue
		}
		total++
		if rec.StatusCode >= 400 {
			errored++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(errored) / float64(total) * 100
}

// summaryLocked derives the top-level summary. The wall clock is read once
// so every window computed here is consistent.
func (s *Store) summaryLocked() domain.Summary {
	now := s.now()
	cutoff := now.Add(-summaryWindow)

	var durations []float64
	total, errored := 0, 0
	perMinuteCutoff := now.Add(-rateWindow)
	perMinute := 0
	for _, rec := range s.requests.All() {
		if rec.Timestamp.After(perMinuteCutoff) {
			perMinute++
		}
		if !rec.Timestamp.After(cutoff) {
			continue
		}
		total++
		if rec.StatusCode >= 400 {
			errored++
		}
		durations = append(durations, rec.DurationMS)
	}
	sort.Float64s(durations)

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(errored) / float64(total) * 100
	}

	summary := domain.Summary{
		Requests: domain.RequestSummary{
			Total:     int64(s.metrics[MetricRequestsTotal].value),
			PerMinute: perMinute,
			ErrorRate: errorRate,
			Latency: domain.LatencySummary{
				P50: percentile(durations, 0.50),
				P95: percentile(durations, 0.95),
				P99: percentile(durations, 0.99),
			},
		},
		Errors: s.errors.Len(),
		Traces: s.traces.Len(),
	}
	if latest, ok := s.resources.Last(); ok {
		summary.Resources = domain.ResourceSummary{
			CPU:           latest.CPUPercent,
			Memory:        latest.Memory,
			EventLoopLag:  latest.EventLoop.MeanMS,
			UptimeSeconds: latest.UptimeSeconds,
		}
	}
	return summary
}

// Summary recomputes the derived view fresh on every call; nothing is
// cached.
func (s *Store) Summary() domain.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// MetricView is the serialized form of one named metric: scalar metrics
// carry a value, series metrics carry their bounded sample window.
type MetricView struct {
	Value     *float64              `json:"value,omitempty"`
	Values    []domain.MetricSample `json:"values,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// CustomMetricView is the serialized form of one custom series.
type CustomMetricView struct {
	Values     []domain.MetricSample `json:"values"`
	Attributes map[string]any        `json:"attributes"`
}

// MetricsResponse is the full payload of the metrics query.
type MetricsResponse struct {
	System  map[string]MetricView       `json:"system"`
	Custom  map[string]CustomMetricView `json:"custom"`
	Summary domain.Summary              `json:"summary"`
}

func (s *Store) systemViewLocked() map[string]MetricView {
	system := make(map[string]MetricView, len(s.metrics))
	for name, m := range s.metrics {
		view := MetricView{Timestamp: m.updated}
		if m.scalar {
			value := m.value
			view.Value = &value
		} else {
			view.Values = m.samples.All()
		}
		system[name] = view
	}
	return system
}

func (s *Store) customViewLocked() map[string]CustomMetricView {
	custom := make(map[string]CustomMetricView, len(s.custom))
	for name, series := range s.custom {
		attrs := make(map[string]any, len(series.attributes))
		for k, v := range series.attributes {
			attrs[k] = v
		}
		custom[name] = CustomMetricView{Values: series.values.All(), Attributes: attrs}
	}
	return custom
}

// Metrics assembles the complete metrics payload: named system series,
// custom series, and the freshly computed summary.
func (s *Store) Metrics() MetricsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MetricsResponse{
		System:  s.systemViewLocked(),
		Custom:  s.customViewLocked(),
		Summary: s.summaryLocked(),
	}
}
