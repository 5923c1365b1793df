package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/internal/errtrack"
	"github.com/lanemc/observability-kit/internal/httpx"
	"github.com/lanemc/observability-kit/internal/monitor"
	"github.com/lanemc/observability-kit/internal/persist"
	"github.com/lanemc/observability-kit/internal/store"
	"github.com/lanemc/observability-kit/internal/ws"
)

// Agent is the in-process telemetry context: one store, one fan-out hub
// and the collectors around them. Construct it once per process and hand
// its Middleware to the host application's server.
type Agent struct {
	cfg     config.Config
	log     *slog.Logger
	store   *store.Store
	hub     *ws.Hub
	tracker *errtrack.Tracker
	sampler *monitor.Sampler
	persist *persist.Persister
	router  *httpx.Router

	dashboardSrv *http.Server
	promSrv      *http.Server

	persistCancel context.CancelFunc
	persistDone   chan struct{}

	mu      sync.Mutex
	started bool
}

// New wires the agent components. The configuration must already be
// validated.
func New(cfg config.Config, logger *slog.Logger) *Agent {
	st := store.New(cfg, logger)
	hub := ws.NewHub(logger)
	st.SetNotifier(hub)
	tracker := errtrack.New(st, cfg, logger)
	sampler := monitor.New(st, cfg, logger)
	persister := persist.New(st, cfg, logger)
	router := httpx.NewRouter(cfg, st, hub, tracker, logger)

	a := &Agent{
		cfg:     cfg,
		log:     logger,
		store:   st,
		hub:     hub,
		tracker: tracker,
		sampler: sampler,
		persist: persister,
		router:  router,
	}
	if cfg.Persistence {
		tracker.SetFlush(func() { _ = persister.Save() })
	}
	return a
}

// Store exposes the underlying telemetry store.
func (a *Agent) Store() *store.Store { return a.store }

// Handler exposes the dashboard router, for hosts that mount it on their
// own server instead of the dedicated dashboard port.
func (a *Agent) Handler() http.Handler { return a.router }

// Start brings up the enabled collectors and servers. Idempotent.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true

	if a.cfg.Persistence {
		a.persist.Load()
		persistCtx, cancel := context.WithCancel(context.Background())
		a.persistCancel = cancel
		a.persistDone = make(chan struct{})
		go func() {
			defer close(a.persistDone)
			a.persist.Run(persistCtx)
		}()
	}
	if a.cfg.EnableErrorTracking {
		a.tracker.Start()
	}
	if a.cfg.EnableResourceMonitoring {
		a.sampler.Start()
	}
	if a.cfg.Dashboard {
		a.dashboardSrv = a.serve(fmt.Sprintf(":%d", a.cfg.DashboardPort), a.router, "dashboard")
		if a.cfg.AutoOpen && a.cfg.IsDevelopment() {
			openBrowser(fmt.Sprintf("http://localhost:%d", a.cfg.DashboardPort))
		}
	}
	if a.cfg.EnablePrometheus {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.router.MetricsHandler())
		a.promSrv = a.serve(fmt.Sprintf(":%d", a.cfg.PrometheusPort), mux, "prometheus")
	}

	a.log.Info("telemetry agent started",
		"service", a.cfg.ServiceName,
		"environment", a.cfg.Environment,
		"dashboard_port", a.cfg.DashboardPort,
	)
	return nil
}

// Shutdown stops collectors, flushes state and closes the servers.
// Idempotent; safe to call on a never-started agent.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	a.sampler.Stop()
	a.tracker.Stop()

	if a.persistCancel != nil {
		// Run writes a final snapshot on cancellation.
		a.persistCancel()
		select {
		case <-a.persistDone:
		case <-ctx.Done():
		}
		a.persistCancel = nil
	}

	a.hub.CloseAll()

	var errs []error
	for _, srv := range []*http.Server{a.dashboardSrv, a.promSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.dashboardSrv, a.promSrv = nil, nil
	a.log.Info("telemetry agent stopped")
	return errors.Join(errs...)
}

// RecordMetric appends a point to a custom metric series.
func (a *Agent) RecordMetric(name string, value float64, attributes map[string]any) {
	a.store.RecordCustomMetric(name, value, attributes)
}

// CaptureException records an error through the tracker.
func (a *Agent) CaptureException(input domain.ErrorInput, severity domain.Severity) {
	a.tracker.Capture(input, severity, false)
}

// CaptureFatal records an error marked fatal. In production this schedules
// process exit after the flush grace period.
func (a *Agent) CaptureFatal(input domain.ErrorInput, severity domain.Severity) {
	a.tracker.Capture(input, severity, true)
}

// Diagnostics runs the ad-hoc health probe list.
func (a *Agent) Diagnostics() []httpx.DiagCheck {
	return a.router.Diagnostics()
}

func (a *Agent) serve(addr string, handler http.Handler, name string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info(name+" server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(name+" server failed", "error", err)
		}
	}()
	return srv
}

// openBrowser is best effort; a headless host just logs nothing.
func openBrowser(url string) {
	switch runtime.GOOS {
	case "darwin":
		_ = exec.Command("open", url).Start()
	case "windows":
		_ = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		_ = exec.Command("xdg-open", url).Start()
	}
}
