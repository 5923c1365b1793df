package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanemc/observability-kit/internal/agent"
	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/pkg/logger"
)

// Demo host service with the telemetry agent attached. The interesting
// part is the wiring: Middleware on the handler chain, spans and custom
// metrics inside handlers, fatal-free error capture.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	log := logger.New("obslite", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	if cfg.IsDevelopment() {
		log = logger.NewText("obslite", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry := agent.New(cfg, log)
	if err := telemetry.Start(ctx); err != nil {
		log.Error("agent start failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		fmt.Fprintln(w, "hello from the demo host")
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, req *http.Request) {
		span := telemetry.StartSpan("load-user", map[string]string{"user_id": req.PathValue("id")})
		defer span.End()
		time.Sleep(time.Duration(rand.Intn(40)) * time.Millisecond)
		span.Log(map[string]string{"step": "loaded"})
		telemetry.RecordMetric("users_served", 1, nil)
		fmt.Fprintf(w, "user %s\n", req.PathValue("id"))
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(time.Duration(500+rand.Intn(1500)) * time.Millisecond)
		fmt.Fprintln(w, "finally")
	})
	mux.HandleFunc("GET /error", func(w http.ResponseWriter, req *http.Request) {
		telemetry.CaptureException(
			domain.StructuredObject{Name: "DemoError", Message: "intentional failure", Code: "E_DEMO"},
			domain.SeverityHigh)
		http.Error(w, "intentional failure", http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) {
		panic("demo panic")
	})

	addr := ":" + config.GetString("PORT", "8000")
	srv := &http.Server{
		Addr:              addr,
		Handler:           telemetry.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("demo host starting", "addr", addr, "dashboard_port", cfg.DashboardPort)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Error("agent shutdown failed", "error", err)
		}
		log.Info("demo host stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
