package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
)

// Event is a change notification published after a successful append.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types published to the fan-out channel.
const (
	EventRequest      = "request"
	EventTrace        = "trace"
	EventError        = "error"
	EventResource     = "resource"
	EventAlerts       = "alerts"
	EventCustomMetric = "custom_metric"
	EventClear        = "clear"
)

// Notifier receives change notifications. Delivery failures are the
// notifier's problem; they must never reach the append path.
type Notifier interface {
	Notify(event Event)
}

// Named base metrics tracked independent of recorded data. They exist from
// construction and survive Clear.
const (
	MetricRequestsTotal    = "http_requests_total"
	MetricRequestDuration  = "http_request_duration_seconds"
	MetricRequestsPerMin   = "http_requests_per_minute"
	MetricErrorRate        = "http_error_rate"
	MetricActiveRequests   = "active_requests"
	MetricProcessCPU       = "process_cpu_percent"
	MetricProcessMemory    = "process_memory_bytes"
	MetricProcessMemoryPct = "process_memory_percent"
	MetricSystemLoad       = "system_load_average"
	MetricSystemMemory     = "system_memory_usage"
)

type metric struct {
	scalar  bool
	value   float64
	samples *ring[domain.MetricSample]
	updated time.Time
}

type customSeries struct {
	values     *ring[domain.MetricSample]
	attributes map[string]any
}

// Store owns every bounded container. All mutation goes through its append
// methods; other components only read or submit records.
type Store struct {
	mu       sync.Mutex
	log      *slog.Logger
	notifier Notifier

	maxPoints int
	startTime time.Time
	now       func() time.Time

	metrics   map[string]*metric
	custom    map[string]*customSeries
	requests  *ring[domain.RequestRecord]
	traces    *ring[domain.TraceRecord]
	errors    *ring[domain.ErrorRecord]
	resources *ring[domain.ResourceSnapshot]
}

// New constructs a Store sized by the validated configuration.
func New(cfg config.Config, log *slog.Logger) *Store {
	if log != nil {
		log = log.With("component", "store")
	}
	s := &Store{
		log:       log,
		maxPoints: cfg.MaxMetricPoints,
		now:       time.Now,
		metrics:   make(map[string]*metric),
		custom:    make(map[string]*customSeries),
		requests:  newRing[domain.RequestRecord](cfg.MaxMetricPoints),
		traces:    newRing[domain.TraceRecord](cfg.MaxTraces),
		errors:    newRing[domain.ErrorRecord](cfg.MaxErrors),
		resources: newRing[domain.ResourceSnapshot](cfg.MaxMetricPoints),
	}
	s.startTime = s.now()
	s.initMetricsLocked(s.startTime)
	return s
}

// SetNotifier attaches the fan-out channel. Appends before this call are
// simply not broadcast.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// SetClock overrides the wall clock, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) initMetricsLocked(now time.Time) {
	scalars := []string{MetricRequestsTotal, MetricErrorRate, MetricActiveRequests}
	series := []string{
		MetricRequestDuration, MetricRequestsPerMin,
		MetricProcessCPU, MetricProcessMemory, MetricProcessMemoryPct,
		MetricSystemLoad, MetricSystemMemory,
	}
	for _, name := range scalars {
		s.metrics[name] = &metric{scalar: true, updated: now}
	}
	for _, name := range series {
		s.metrics[name] = &metric{samples: newRing[domain.MetricSample](s.maxPoints), updated: now}
	}
}

// notifyLocked publishes while the store lock is held so observers see
// events in append order. A panicking notifier never fails the append.
func (s *Store) notifyLocked(event Event) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && s.log != nil {
			s.log.Warn("change notification failed", "event", event.Type, "panic", r)
		}
	}()
	s.notifier.Notify(event)
}

func (s *Store) addSampleLocked(name string, value float64, now time.Time) {
	m, ok := s.metrics[name]
	if !ok {
		m = &metric{samples: newRing[domain.MetricSample](s.maxPoints)}
		s.metrics[name] = m
	}
	m.samples.Append(domain.MetricSample{Value: value, Timestamp: now})
	m.updated = now
}

// RecordRequest appends a completed request, updates the derived request
// metrics, and notifies observers.
func (s *Store) RecordRequest(rec domain.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}

	total := s.metrics[MetricRequestsTotal]
	total.value++
	total.updated = now

	s.addSampleLocked(MetricRequestDuration, rec.DurationMS/1000, now)
	s.requests.Append(rec)

	if rec.StatusCode >= 400 {
		rate := s.metrics[MetricErrorRate]
		rate.value = s.errorRateLocked(now)
		rate.updated = now
	}
	s.addSampleLocked(MetricRequestsPerMin, float64(s.perMinuteLocked(now)), now)

	s.notifyLocked(Event{Type: EventRequest, Data: rec})
}

// RecordTrace appends a completed traced operation.
func (s *Store) RecordTrace(rec domain.TraceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces.Append(rec)
	s.notifyLocked(Event{Type: EventTrace, Data: rec})
}

// RecordError appends a captured error.
func (s *Store) RecordError(rec domain.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.errors.Append(rec)
	s.notifyLocked(Event{Type: EventError, Data: rec})
}

// RecordResource appends a resource snapshot and decomposes it into the
// per-metric time series.
func (s *Store) RecordResource(snap domain.ResourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now
	}
	s.addSampleLocked(MetricProcessCPU, snap.CPUPercent, now)
	s.addSampleLocked(MetricProcessMemory, float64(snap.Memory.RSS), now)
	s.addSampleLocked(MetricProcessMemoryPct, snap.Memory.Percent, now)
	if sys := snap.System; sys != nil {
		if len(sys.LoadAverage) > 0 {
			s.addSampleLocked(MetricSystemLoad, sys.LoadAverage[0], now)
		}
		if sys.Memory != nil {
			s.addSampleLocked(MetricSystemMemory, sys.Memory.Percent, now)
		}
	}
	s.resources.Append(snap)
	s.notifyLocked(Event{Type: EventResource, Data: snap})
}

// RecordCustomMetric appends a point to a named custom series, creating the
// series on first use. Attributes merge last-write-wins.
func (s *Store) RecordCustomMetric(name string, value float64, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	series, ok := s.custom[name]
	if !ok {
		series = &customSeries{
			values:     newRing[domain.MetricSample](s.maxPoints),
			attributes: make(map[string]any),
		}
		s.custom[name] = series
	}
	series.values.Append(domain.MetricSample{Value: value, Timestamp: now})
	for k, v := range attributes {
		series.attributes[k] = v
	}
	s.notifyLocked(Event{Type: EventCustomMetric, Data: map[string]any{
		"name":       name,
		"value":      value,
		"attributes": attributes,
	}})
}

// PublishAlerts forwards a batch of threshold alerts to observers. Alerts
// are derived, not stored; the batch notification is distinct from append
// notifications.
func (s *Store) PublishAlerts(alerts []domain.Alert) {
	if len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(Event{Type: EventAlerts, Data: alerts})
}

// IncActive bumps the in-flight request gauge.
func (s *Store) IncActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics[MetricActiveRequests]
	m.value++
	m.updated = s.now()
}

// DecActive drops the in-flight request gauge.
func (s *Store) DecActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics[MetricActiveRequests]
	if m.value > 0 {
		m.value--
	}
	m.updated = s.now()
}

// TotalRequests reports the lifetime request counter, which keeps counting
// across FIFO eviction.
func (s *Store) TotalRequests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.metrics[MetricRequestsTotal].value)
}

// Traces returns the most recent traces, newest first. Limit defaults to 50.
func (s *Store) Traces(limit int) []domain.TraceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	return s.traces.Recent(limit)
}

// Errors returns the most recent errors, newest first. Limit defaults to 50.
func (s *Store) Errors(limit int) []domain.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	return s.errors.Recent(limit)
}

// Requests returns the most recent requests, newest first. Limit defaults
// to 100.
func (s *Store) Requests(limit int) []domain.RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	return s.requests.Recent(limit)
}

// Resources returns the most recent resource snapshots, newest first.
func (s *Store) Resources(limit int) []domain.ResourceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	return s.resources.Recent(limit)
}

// Clear resets every container to its initial state, indistinguishable from
// a freshly constructed store, and returns the confirmation timestamp.
func (s *Store) Clear() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.metrics = make(map[string]*metric)
	s.custom = make(map[string]*customSeries)
	s.requests.Clear()
	s.traces.Clear()
	s.errors.Clear()
	s.resources.Clear()
	s.initMetricsLocked(now)
	s.notifyLocked(Event{Type: EventClear, Data: map[string]any{"timestamp": now}})
	return now
}

// Stats reports the current length of each container.
func (s *Store) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"metrics":          len(s.metrics),
		"custom_metrics":   len(s.custom),
		"traces":           s.traces.Len(),
		"errors":           s.errors.Len(),
		"requests":         s.requests.Len(),
		"resource_metrics": s.resources.Len(),
	}
}
