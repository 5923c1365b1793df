package agent

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lanemc/observability-kit/internal/domain"
)

// Middleware instruments the host application's handler chain. The host
// path is fail-open: a panic below is captured as a telemetry error and
// answered with a 500, never re-raised into the host server.
func (a *Agent) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.store.IncActive()
		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			a.store.DecActive()
			status := recorder.status
			if rec := recover(); rec != nil {
				a.tracker.Capture(
					domain.NativeException{Err: fmt.Errorf("panic: %v", rec)},
					domain.SeverityCritical, false)
				if recorder.status == 0 {
					http.Error(recorder, "internal server error", http.StatusInternalServerError)
				}
				status = http.StatusInternalServerError
			}
			if status == 0 {
				status = http.StatusOK
			}
			a.store.RecordRequest(domain.RequestRecord{
				Timestamp:  time.Now(),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: status,
				DurationMS: float64(time.Since(start).Microseconds()) / 1000,
				UserAgent:  req.UserAgent(),
				IP:         remoteIP(req),
			})
		}()
		next.ServeHTTP(recorder, req)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func remoteIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
