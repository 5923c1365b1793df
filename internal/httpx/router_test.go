package httpx

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/internal/errtrack"
	"github.com/lanemc/observability-kit/internal/store"
	"github.com/lanemc/observability-kit/internal/ws"
)

func testConfig() config.Config {
	return config.Config{
		ServiceName:           "test-service",
		ServiceVersion:        "0.0.1",
		Environment:           "development",
		MaxTraces:             100,
		MaxErrors:             100,
		MaxMetricPoints:       100,
		PatternMaxAge:         24 * time.Hour,
		EventLoopLagThreshold: 100 * time.Millisecond,
		MemoryThreshold:       512 * 1024 * 1024,
		CPUThreshold:          80,
	}
}

func newTestRouter(t *testing.T) (*Router, *store.Store, *ws.Hub) {
	t.Helper()
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(cfg, logger)
	hub := ws.NewHub(logger)
	st.SetNotifier(hub)
	tracker := errtrack.New(st, cfg, logger)
	return NewRouter(cfg, st, hub, tracker, logger), st, hub
}

func getJSON(t *testing.T, server *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	var body map[string]any
	resp := getJSON(t, server, "/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["service"] != "test-service" {
		t.Fatalf("unexpected health payload %+v", body)
	}
}

func TestQueryEndpointsWithLimits(t *testing.T) {
	r, st, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	base := time.Now()
	for i := 0; i < 5; i++ {
		st.RecordRequest(domain.RequestRecord{Timestamp: base.Add(time.Duration(i) * time.Second), Method: "GET", Path: "/x", StatusCode: 200, DurationMS: 5})
		st.RecordError(domain.ErrorRecord{ID: "e", Name: "Error", Message: "boom", Timestamp: base})
		st.RecordTrace(domain.TraceRecord{ID: "t", OperationName: "op", StartTime: base})
	}

	var reqBody struct {
		Requests []domain.RequestRecord `json:"requests"`
	}
	getJSON(t, server, "/api/requests?limit=2", &reqBody)
	if len(reqBody.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqBody.Requests))
	}
	if !reqBody.Requests[0].Timestamp.After(reqBody.Requests[1].Timestamp) {
		t.Fatalf("requests must be most-recent-first")
	}

	var errBody struct {
		Errors []domain.ErrorRecord `json:"errors"`
	}
	getJSON(t, server, "/api/errors", &errBody)
	if len(errBody.Errors) != 5 {
		t.Fatalf("expected 5 errors, got %d", len(errBody.Errors))
	}

	var traceBody struct {
		Traces []domain.TraceRecord `json:"traces"`
	}
	getJSON(t, server, "/api/traces?limit=3", &traceBody)
	if len(traceBody.Traces) != 3 {
		t.Fatalf("expected 3 traces, got %d", len(traceBody.Traces))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, st, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	st.RecordRequest(domain.RequestRecord{Timestamp: time.Now(), Method: "GET", Path: "/x", StatusCode: 500, DurationMS: 30})

	var body struct {
		Summary domain.Summary `json:"summary"`
	}
	getJSON(t, server, "/api/metrics", &body)
	if body.Summary.Requests.Total != 1 {
		t.Fatalf("expected total 1, got %d", body.Summary.Requests.Total)
	}
	if body.Summary.Requests.ErrorRate != 100 {
		t.Fatalf("expected error rate 100, got %g", body.Summary.Requests.ErrorRate)
	}
}

func TestClearEndpoint(t *testing.T) {
	r, st, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	st.RecordRequest(domain.RequestRecord{Timestamp: time.Now(), Method: "GET", Path: "/x", StatusCode: 200})

	resp, err := http.Post(server.URL+"/api/clear", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["cleared"] != true || body["timestamp"] == nil {
		t.Fatalf("expected confirmation timestamp, got %+v", body)
	}
	if got := st.Requests(0); len(got) != 0 {
		t.Fatalf("clear must empty the store, got %d requests", len(got))
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/diagnostics", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Checks []DiagCheck `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	names := map[string]string{}
	for _, c := range body.Checks {
		names[c.Name] = c.Status
	}
	for _, want := range []string{"memory", "cpu", "scheduler", "store"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing %q check in %+v", want, names)
		}
	}
	if names["cpu"] != "unknown" {
		t.Fatalf("cpu check without snapshots should be unknown, got %q", names["cpu"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r, _, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/metrics", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/clear")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestWebsocketSnapshotLiveAndPing(t *testing.T) {
	r, st, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	st.RecordError(domain.ErrorRecord{ID: "seed", Name: "Error", Message: "seed", Timestamp: time.Now()})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot ws.Envelope
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if snapshot.Type != "snapshot" {
		t.Fatalf("first frame must be the snapshot, got %q", snapshot.Type)
	}
	data := snapshot.Data.(map[string]any)
	if data["metrics"] == nil || data["errors"] == nil {
		t.Fatalf("snapshot missing fields: %+v", data)
	}

	st.RecordRequest(domain.RequestRecord{Timestamp: time.Now(), Method: "GET", Path: "/live", StatusCode: 200})
	var live ws.Envelope
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("reading live event: %v", err)
	}
	if live.Type != store.EventRequest {
		t.Fatalf("expected %q event, got %q", store.EventRequest, live.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	var pong map[string]string
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong["type"] != "pong" {
		t.Fatalf("expected pong, got %+v", pong)
	}
}

func TestSSESnapshotFrame(t *testing.T) {
	r, _, _ := newTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(event, "event: telemetry") {
		t.Fatalf("expected named telemetry event, got %q", event)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(data, `"type":"snapshot"`) {
		t.Fatalf("expected snapshot payload, got %q", data)
	}
}
