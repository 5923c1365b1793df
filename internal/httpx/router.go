package httpx

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/errtrack"
	"github.com/lanemc/observability-kit/internal/store"
	"github.com/lanemc/observability-kit/internal/ws"
)

const sseHeartbeatInterval = 15 * time.Second

// Router serves the dashboard and query API in front of the telemetry
// store.
type Router struct {
	mux      *http.ServeMux
	log      *slog.Logger
	cfg      config.Config
	store    *store.Store
	hub      *ws.Hub
	tracker  *errtrack.Tracker
	upgrader websocket.Upgrader
	metrics  *apiMetrics
	started  time.Time
}

// NewRouter assembles routes over the given store, hub and tracker.
func NewRouter(cfg config.Config, st *store.Store, hub *ws.Hub, tracker *errtrack.Tracker, logger *slog.Logger) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		log:     logger,
		cfg:     cfg,
		store:   st,
		hub:     hub,
		tracker: tracker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: newAPIMetrics(),
		started: time.Now(),
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// MetricsHandler exposes the agent's Prometheus registry, for mounting on
// a dedicated listener.
func (r *Router) MetricsHandler() http.Handler {
	return r.metrics.handler()
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit(r.handleIndex))
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/api/metrics", r.audit(r.handleMetrics))
	r.mux.HandleFunc("/api/traces", r.audit(r.handleTraces))
	r.mux.HandleFunc("/api/errors", r.audit(r.handleErrors))
	r.mux.HandleFunc("/api/requests", r.audit(r.handleRequests))
	r.mux.HandleFunc("/api/patterns", r.audit(r.handlePatterns))
	r.mux.HandleFunc("/api/clear", r.audit(r.handleClear))
	r.mux.HandleFunc("/api/diagnostics", r.audit(r.handleDiagnostics))
	r.mux.HandleFunc("/ws", r.audit(r.handleWS))
	r.mux.HandleFunc("/events", r.audit(r.handleEvents))
	if r.cfg.EnablePrometheus {
		r.mux.Handle("/metrics", r.metrics.handler())
	}
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        r.cfg.ServiceName,
		"version":        r.cfg.ServiceVersion,
		"uptime_seconds": time.Since(r.started).Seconds(),
	})
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.store.Metrics())
}

func (r *Router) handleTraces(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": r.store.Traces(parseLimit(req))})
}

func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": r.store.Errors(parseLimit(req))})
}

func (r *Router) handleRequests(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": r.store.Requests(parseLimit(req))})
}

func (r *Router) handlePatterns(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit := parseLimit(req)
	if limit <= 0 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"top":    r.tracker.TopPatterns(limit),
		"recent": r.tracker.RecentPatterns(limit),
	})
}

func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	cleared := r.store.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "timestamp": cleared})
}

func (r *Router) handleDiagnostics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"checks":    r.Diagnostics(),
	})
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.log)
	frame, err := r.snapshotFrame()
	if err != nil {
		r.log.Error("snapshot marshal failed", "error", err)
		client.Close()
		return
	}
	r.hub.Subscribe(client, frame)
	r.metrics.observers.Set(float64(r.hub.Count()))
	go func() {
		client.ReadLoop()
		r.hub.Unsubscribe(client)
		r.metrics.observers.Set(float64(r.hub.Count()))
	}()
}

func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.log)
	frame, err := r.snapshotFrame()
	if err != nil {
		r.log.Error("snapshot marshal failed", "error", err)
		return
	}
	r.hub.Subscribe(client, frame)
	r.metrics.observers.Set(float64(r.hub.Count()))
	defer func() {
		r.hub.Unsubscribe(client)
		r.metrics.observers.Set(float64(r.hub.Count()))
	}()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

// snapshotFrame serializes the initial full-state message a fresh observer
// receives before live events. Built before the hub lock is taken.
func (r *Router) snapshotFrame() ([]byte, error) {
	return json.Marshal(ws.Envelope{
		Type: "snapshot",
		Data: map[string]any{
			"metrics": r.store.Metrics(),
			"traces":  r.store.Traces(20),
			"errors":  r.store.Errors(20),
		},
	})
}

// DiagCheck is one entry of the ad-hoc health probe list.
type DiagCheck struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Diagnostics executes the health probe list: process memory, last known
// CPU reading, scheduler responsiveness and store statistics.
func (r *Router) Diagnostics() []DiagCheck {
	checks := make([]DiagCheck, 0, 4)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memStatus := "ok"
	if r.cfg.MemoryThreshold > 0 && ms.HeapAlloc > r.cfg.MemoryThreshold {
		memStatus = "warn"
	}
	checks = append(checks, DiagCheck{
		Name:   "memory",
		Status: memStatus,
		Detail: map[string]any{
			"heap_alloc": ms.HeapAlloc,
			"heap_sys":   ms.HeapSys,
			"threshold":  r.cfg.MemoryThreshold,
		},
	})

	cpu := DiagCheck{Name: "cpu", Status: "unknown"}
	if snaps := r.store.Resources(1); len(snaps) > 0 {
		cpu.Status = "ok"
		if r.cfg.CPUThreshold > 0 && snaps[0].CPUPercent > r.cfg.CPUThreshold {
			cpu.Status = "warn"
		}
		cpu.Detail = map[string]any{
			"cpu_percent": snaps[0].CPUPercent,
			"threshold":   r.cfg.CPUThreshold,
		}
	}
	checks = append(checks, cpu)

	start := time.Now()
	time.Sleep(10 * time.Millisecond)
	drift := time.Since(start) - 10*time.Millisecond
	schedStatus := "ok"
	if drift > r.cfg.EventLoopLagThreshold {
		schedStatus = "warn"
	}
	checks = append(checks, DiagCheck{
		Name:   "scheduler",
		Status: schedStatus,
		Detail: map[string]any{"drift_ms": float64(drift.Microseconds()) / 1000},
	})

	stats := map[string]any{}
	for k, v := range r.store.Stats() {
		stats[k] = v
	}
	stats["goroutines"] = runtime.NumGoroutine()
	checks = append(checks, DiagCheck{Name: "store", Status: "ok", Detail: stats})

	return checks
}

func parseLimit(req *http.Request) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.metrics.observe(req.Method, req.URL.Path, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			r.log.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.log.Warn("http_request", fields...)
		default:
			r.log.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the websocket upgrade to pass through the audit
// wrapper.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
