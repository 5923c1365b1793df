package agent

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ServiceName:           "agent-test",
		ServiceVersion:        "0.0.1",
		Environment:           "development",
		EnableTracing:         true,
		SampleRate:            1,
		EnableErrorTracking:   true,
		PatternMaxAge:         24 * time.Hour,
		MaxTraces:             100,
		MaxErrors:             100,
		MaxMetricPoints:       100,
		Persistence:           true,
		PersistencePath:       t.TempDir(),
		PersistInterval:       time.Minute,
		ResourceInterval:      time.Second,
		EventLoopLagThreshold: 100 * time.Millisecond,
		MemoryThreshold:       512 * 1024 * 1024,
		CPUThreshold:          80,
	}
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	return New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	a := newTestAgent(t)
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	}))
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/things")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("middleware must not alter the response, got %d", resp.StatusCode)
	}

	records := a.Store().Requests(0)
	if len(records) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(records))
	}
	rec := records[0]
	if rec.Method != "GET" || rec.Path != "/things" || rec.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.DurationMS < 0 {
		t.Fatalf("duration must be non-negative, got %g", rec.DurationMS)
	}
	if a.Store().TotalRequests() != 1 {
		t.Fatalf("lifetime counter should be 1, got %d", a.Store().TotalRequests())
	}
}

func TestMiddlewarePanicFailOpen(t *testing.T) {
	a := newTestAgent(t)
	handler := a.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/boom")
	if err != nil {
		t.Fatalf("panic must not reach the client transport: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	errs := a.Store().Errors(0)
	if len(errs) != 1 {
		t.Fatalf("expected the panic captured as an error, got %d", len(errs))
	}
	if errs[0].Severity != domain.SeverityCritical || errs[0].Stack == "" {
		t.Fatalf("panic capture should be critical with a stack, got %+v", errs[0])
	}

	reqs := a.Store().Requests(0)
	if len(reqs) != 1 || reqs[0].StatusCode != http.StatusInternalServerError {
		t.Fatalf("panicking request must still be recorded as 500, got %+v", reqs)
	}
}

func TestStartSpanRecordsTrace(t *testing.T) {
	a := newTestAgent(t)

	span := a.StartSpan("load-user", map[string]string{"user": "42"})
	if span == nil {
		t.Fatalf("sample rate 1 must always trace")
	}
	span.SetTag("region", "eu")
	span.Log(map[string]string{"step": "query"})
	span.End()
	span.End()

	traces := a.Store().Traces(0)
	if len(traces) != 1 {
		t.Fatalf("expected exactly 1 trace after double End, got %d", len(traces))
	}
	tr := traces[0]
	if tr.OperationName != "load-user" || tr.Tags["region"] != "eu" || len(tr.Logs) != 1 {
		t.Fatalf("unexpected trace %+v", tr)
	}
	if tr.TraceID == "" || tr.SpanID == "" {
		t.Fatalf("trace must carry generated ids")
	}
}

func TestStartSpanDisabledTracing(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableTracing = false
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	span := a.StartSpan("ignored", nil)
	if span != nil {
		t.Fatalf("disabled tracing must return a nil span")
	}
	// Nil span operations are safe no-ops.
	span.SetTag("k", "v")
	span.Log(nil)
	span.End()
	if got := a.Store().Traces(0); len(got) != 0 {
		t.Fatalf("no trace expected, got %d", len(got))
	}
}

func TestRecordMetricAndCapture(t *testing.T) {
	a := newTestAgent(t)
	a.RecordMetric("orders_total", 7, map[string]any{"region": "eu"})
	a.CaptureException(domain.StringMessage("payment declined 42"), domain.SeverityMedium)

	metrics := a.Store().Metrics()
	if _, ok := metrics.Custom["orders_total"]; !ok {
		t.Fatalf("custom metric missing: %+v", metrics.Custom)
	}
	if got := a.Store().Errors(0); len(got) != 1 {
		t.Fatalf("expected 1 captured error, got %d", len(got))
	}
}

func TestLifecyclePersistsOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("second Start must be a no-op: %v", err)
	}

	a.Store().RecordError(domain.ErrorRecord{ID: "persisted", Name: "Error", Timestamp: time.Now()})

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown must be a no-op: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.PersistencePath, "data.json"))
	if err != nil {
		t.Fatalf("final snapshot missing: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("final snapshot is empty")
	}

	diags := a.Diagnostics()
	if len(diags) == 0 {
		t.Fatalf("diagnostics should run after shutdown too")
	}
}
