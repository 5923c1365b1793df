package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := validConfig()
	if cfg.ServiceName != "unknown-service" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.DashboardPort != 8001 {
		t.Fatalf("unexpected dashboard port %d", cfg.DashboardPort)
	}
	if cfg.MaxMetricPoints != 1440 {
		t.Fatalf("unexpected max metric points %d", cfg.MaxMetricPoints)
	}
	if cfg.MaxTraces != 1000 || cfg.MaxErrors != 500 {
		t.Fatalf("unexpected retention defaults: traces=%d errors=%d", cfg.MaxTraces, cfg.MaxErrors)
	}
	if cfg.ResourceInterval != 5*time.Second {
		t.Fatalf("unexpected resource interval %s", cfg.ResourceInterval)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"dashboard port zero", func(c *Config) { c.DashboardPort = 0 }, "dashboard port"},
		{"dashboard port too high", func(c *Config) { c.DashboardPort = 70000 }, "dashboard port"},
		{"prometheus port", func(c *Config) { c.PrometheusPort = -1 }, "prometheus port"},
		{"sample rate", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"metrics interval", func(c *Config) { c.MetricsInterval = 500 * time.Millisecond }, "metrics interval"},
		{"resource interval", func(c *Config) { c.ResourceInterval = 10 * time.Millisecond }, "resource interval"},
		{"max traces", func(c *Config) { c.MaxTraces = 0 }, "max traces"},
		{"max errors", func(c *Config) { c.MaxErrors = -5 }, "max errors"},
		{"max metric points", func(c *Config) { c.MaxMetricPoints = 0 }, "max metric points"},
		{"cpu threshold", func(c *Config) { c.CPUThreshold = 120 }, "cpu threshold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("authorization=Bearer abc, x-tenant = acme,malformed")
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if headers["authorization"] != "Bearer abc" {
		t.Fatalf("unexpected authorization header %q", headers["authorization"])
	}
	if headers["x-tenant"] != "acme" {
		t.Fatalf("unexpected tenant header %q", headers["x-tenant"])
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Fatalf("expected production mode")
	}
	cfg.Environment = "development"
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatalf("expected development mode")
	}
}
