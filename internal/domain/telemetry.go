package domain

import "time"

// MetricSample is a single point in a named time series. Immutable once
// created.
type MetricSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestRecord captures one completed HTTP request handled by the
// instrumented application.
type RequestRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	DurationMS float64   `json:"duration"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
}

// SpanLog is a timestamped annotation attached to a trace span.
type SpanLog struct {
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// TraceRecord captures one completed traced operation.
type TraceRecord struct {
	ID            string            `json:"id"`
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	OperationName string            `json:"operation_name"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	DurationMS    float64           `json:"duration"`
	Tags          map[string]string `json:"tags,omitempty"`
	Logs          []SpanLog         `json:"logs,omitempty"`
	ChildSpans    []string          `json:"child_spans,omitempty"`
}

// Severity ranks captured errors.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorRecord captures one exception, rejection, or warning.
type ErrorRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Fatal     bool           `json:"fatal"`
	Message   string         `json:"message"`
	Stack     string         `json:"stack,omitempty"`
	Name      string         `json:"name"`
	Code      string         `json:"code,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// ErrorPattern is a deduplicated class of errors sharing a normalized
// type/name/message key.
type ErrorPattern struct {
	Key       string        `json:"key"`
	Type      string        `json:"type"`
	Name      string        `json:"name"`
	Message   string        `json:"message"`
	Severity  Severity      `json:"severity"`
	FirstSeen time.Time     `json:"first_seen"`
	LastSeen  time.Time     `json:"last_seen"`
	Count     int64         `json:"count"`
	Examples  []ErrorRecord `json:"examples"`
}

// MemoryStats is the process memory breakdown of a resource snapshot.
type MemoryStats struct {
	RSS     uint64  `json:"rss"`
	VMS     uint64  `json:"vms"`
	Percent float64 `json:"percent"`
}

// LagStats summarizes scheduler lag samples accumulated between resource
// ticks.
type LagStats struct {
	MeanMS  float64 `json:"mean"`
	P95MS   float64 `json:"p95"`
	MaxMS   float64 `json:"max"`
	Samples int     `json:"samples"`
}

// GCStats summarizes garbage-collector activity since the previous tick.
type GCStats struct {
	Cycles   uint32    `json:"cycles"`
	PausesMS []float64 `json:"pauses,omitempty"`
}

// SystemMemory describes host-wide memory usage.
type SystemMemory struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

// DiskStats describes usage of the root filesystem.
type DiskStats struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
}

// NetworkStats holds cumulative host network counters.
type NetworkStats struct {
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// SystemStats groups host-level probes. Any field may be nil when its probe
// failed; a partial snapshot is still recorded.
type SystemStats struct {
	LoadAverage []float64     `json:"load_average,omitempty"`
	Memory      *SystemMemory `json:"memory,omitempty"`
	Disk        *DiskStats    `json:"disk,omitempty"`
	Network     *NetworkStats `json:"network,omitempty"`
}

// ResourceSnapshot is a point-in-time capture of process and system
// resource usage.
type ResourceSnapshot struct {
	Timestamp     time.Time    `json:"timestamp"`
	CPUPercent    float64      `json:"cpu"`
	Memory        MemoryStats  `json:"memory"`
	UptimeSeconds float64      `json:"uptime"`
	Goroutines    int          `json:"goroutines"`
	EventLoop     LagStats     `json:"event_loop"`
	GC            GCStats      `json:"gc"`
	System        *SystemStats `json:"system,omitempty"`
}

// Alert is a threshold breach detected after a resource tick.
type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// LatencySummary holds request duration percentiles in milliseconds.
type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// RequestSummary aggregates the trailing request window.
type RequestSummary struct {
	Total     int64          `json:"total"`
	PerMinute int            `json:"per_minute"`
	ErrorRate float64        `json:"error_rate"`
	Latency   LatencySummary `json:"latency"`
}

// ResourceSummary reflects the most recent resource snapshot.
type ResourceSummary struct {
	CPU           float64     `json:"cpu"`
	Memory        MemoryStats `json:"memory"`
	EventLoopLag  float64     `json:"event_loop_lag"`
	UptimeSeconds float64     `json:"uptime"`
}

// Summary is the derived top-level view served by the query API. It is
// recomputed fresh on every call.
type Summary struct {
	Requests  RequestSummary  `json:"requests"`
	Resources ResourceSummary `json:"resources"`
	Errors    int             `json:"errors"`
	Traces    int             `json:"traces"`
}
