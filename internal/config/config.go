package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every knob the agent recognizes. A Config must pass
// Validate before any component is constructed.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Dashboard     bool
	DashboardPort int
	AutoOpen      bool

	EnableTracing bool
	SampleRate    float64

	EnableMetrics   bool
	MetricsInterval time.Duration

	EnableResourceMonitoring bool
	ResourceInterval         time.Duration

	EnableErrorTracking bool
	PatternMaxAge       time.Duration

	MaxTraces       int
	MaxErrors       int
	MaxMetricPoints int

	Persistence     bool
	PersistencePath string
	PersistInterval time.Duration

	EnablePrometheus bool
	PrometheusPort   int

	OTLPEndpoint string
	OTLPHeaders  map[string]string

	MaxConcurrentRequests int
	EventLoopLagThreshold time.Duration
	MemoryThreshold       uint64
	CPUThreshold          float64
}

// Load constructs a Config from LITEOBS_-prefixed environment variables,
// falling back to the documented defaults, and validates it.
func Load() (Config, error) {
	cfg := Config{
		ServiceName:    GetString("LITEOBS_SERVICE_NAME", "unknown-service"),
		ServiceVersion: GetString("LITEOBS_SERVICE_VERSION", "1.0.0"),
		Environment:    GetString("ENVIRONMENT", "development"),

		Dashboard:     GetBool("LITEOBS_DASHBOARD", true),
		DashboardPort: GetInt("LITEOBS_DASHBOARD_PORT", 8001),
		AutoOpen:      GetBool("LITEOBS_AUTO_OPEN", true),

		EnableTracing: GetBool("LITEOBS_ENABLE_TRACING", true),
		SampleRate:    GetFloat("LITEOBS_SAMPLE_RATE", 1.0),

		EnableMetrics:   GetBool("LITEOBS_ENABLE_METRICS", true),
		MetricsInterval: time.Duration(GetInt("LITEOBS_METRICS_INTERVAL", 5000)) * time.Millisecond,

		EnableResourceMonitoring: GetBool("LITEOBS_ENABLE_RESOURCE_MONITORING", true),
		ResourceInterval:         time.Duration(GetInt("LITEOBS_RESOURCE_INTERVAL", 5000)) * time.Millisecond,

		EnableErrorTracking: GetBool("LITEOBS_ENABLE_ERROR_TRACKING", true),
		PatternMaxAge:       time.Duration(GetInt("LITEOBS_PATTERN_MAX_AGE_HOURS", 24)) * time.Hour,

		MaxTraces:       GetInt("LITEOBS_MAX_TRACES", 1000),
		MaxErrors:       GetInt("LITEOBS_MAX_ERRORS", 500),
		MaxMetricPoints: GetInt("LITEOBS_MAX_METRIC_POINTS", 1440),

		Persistence:     GetBool("LITEOBS_PERSISTENCE", false),
		PersistencePath: GetString("LITEOBS_PERSISTENCE_PATH", ".observability"),
		PersistInterval: time.Duration(GetInt("LITEOBS_PERSIST_INTERVAL_SECONDS", 60)) * time.Second,

		EnablePrometheus: GetBool("LITEOBS_ENABLE_PROMETHEUS", false),
		PrometheusPort:   GetInt("LITEOBS_PROMETHEUS_PORT", 9090),

		OTLPEndpoint: GetString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPHeaders:  ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),

		MaxConcurrentRequests: GetInt("LITEOBS_MAX_CONCURRENT_REQUESTS", 1000),
		EventLoopLagThreshold: time.Duration(GetInt("LITEOBS_EVENT_LOOP_LAG_THRESHOLD", 100)) * time.Millisecond,
		MemoryThreshold:       uint64(GetInt("LITEOBS_MEMORY_THRESHOLD", 512*1024*1024)),
		CPUThreshold:          GetFloat("LITEOBS_CPU_THRESHOLD", 80.0),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings before any component starts.
func (c Config) Validate() error {
	if c.DashboardPort < 1 || c.DashboardPort > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", c.DashboardPort)
	}
	if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
		return fmt.Errorf("invalid prometheus port: %d", c.PrometheusPort)
	}
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("invalid sample rate: %g, must be between 0 and 1", c.SampleRate)
	}
	if c.MetricsInterval < time.Second {
		return fmt.Errorf("metrics interval too low: %s, minimum is 1s", c.MetricsInterval)
	}
	if c.ResourceInterval < time.Second {
		return fmt.Errorf("resource interval too low: %s, minimum is 1s", c.ResourceInterval)
	}
	if c.MaxTraces < 1 {
		return fmt.Errorf("invalid max traces: %d, must be at least 1", c.MaxTraces)
	}
	if c.MaxErrors < 1 {
		return fmt.Errorf("invalid max errors: %d, must be at least 1", c.MaxErrors)
	}
	if c.MaxMetricPoints < 1 {
		return fmt.Errorf("invalid max metric points: %d, must be at least 1", c.MaxMetricPoints)
	}
	if c.CPUThreshold < 0.0 || c.CPUThreshold > 100.0 {
		return fmt.Errorf("invalid cpu threshold: %g%%, must be between 0 and 100", c.CPUThreshold)
	}
	return nil
}

// IsDevelopment reports whether the agent runs in development mode.
func (c Config) IsDevelopment() bool { return c.Environment == "development" }

// IsProduction reports whether the agent runs in production mode.
func (c Config) IsProduction() bool { return c.Environment == "production" }

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetFloat retrieves an environment variable as float64 or returns fallback.
func GetFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// ParseHeaders splits a comma-separated key=value list into a map, the
// format used by OTEL_EXPORTER_OTLP_HEADERS.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers
}
