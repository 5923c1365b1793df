package errtrack

import (
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/internal/store"
)

const (
	cleanupSweepInterval = time.Hour
	fatalGraceDelay      = 2 * time.Second
)

// Tracker is the explicit error-capture entry point. The runtime-hook layer
// calls Capture when exception events occur; the tracker itself never
// reaches into global runtime state.
type Tracker struct {
	store   *store.Store
	matcher *Matcher
	cfg     config.Config
	log     *slog.Logger
	now     func() time.Time

	// flush runs before a fatal exit to drain persistence; exit is
	// overridable for tests.
	flush func()
	exit  func(int)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Tracker bound to the given store.
func New(st *store.Store, cfg config.Config, log *slog.Logger) *Tracker {
	if log != nil {
		log = log.With("component", "error_tracker")
	}
	return &Tracker{
		store:   st,
		matcher: NewMatcher(nil),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		flush:   func() {},
		exit:    os.Exit,
	}
}

// SetFlush registers the pre-exit flush hook used by the fatal path.
func (t *Tracker) SetFlush(flush func()) {
	if flush != nil {
		t.flush = flush
	}
}

// SetExit overrides process termination, for tests.
func (t *Tracker) SetExit(exit func(int)) {
	if exit != nil {
		t.exit = exit
	}
}

// SetClock overrides the wall clock, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
		t.matcher.now = now
	}
}

// Start launches the periodic pattern cleanup sweep. Idempotent while
// running.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.sweep(t.stop)
}

// Stop halts the cleanup sweep. Idempotent while stopped; no sweep runs
// after Stop returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) sweep(stop chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(cleanupSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			removed := t.matcher.Cleanup(t.cfg.PatternMaxAge)
			if removed > 0 && t.log != nil {
				t.log.Info("stale error patterns removed", "count", removed)
			}
		}
	}
}

// Capture records an error occurrence. The outermost recover keeps a
// failure inside the capture path from re-entering it: such failures are
// logged and dropped.
func (t *Tracker) Capture(input domain.ErrorInput, severity domain.Severity, fatal bool) {
	defer func() {
		if r := recover(); r != nil && t.log != nil {
			t.log.Error("error capture failed", "panic", r)
		}
	}()

	detail := input.Detail()
	if detail.Stack == "" {
		if _, native := input.(domain.NativeException); native || fatal {
			detail.Stack = string(debug.Stack())
		}
	}
	if severity == "" {
		severity = domain.SeverityMedium
	}

	rec := domain.ErrorRecord{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		Type:      domain.Kind(input),
		Severity:  severity,
		Fatal:     fatal,
		Message:   detail.Message,
		Stack:     detail.Stack,
		Name:      detail.Name,
		Code:      detail.Code,
	}
	t.store.RecordError(rec)
	t.matcher.Record(rec)

	if fatal && t.cfg.IsProduction() {
		t.scheduleFatalExit(rec)
	}
}

// scheduleFatalExit terminates the process after a short grace delay so
// state can flush. Only the configured production fatal path reaches here.
func (t *Tracker) scheduleFatalExit(rec domain.ErrorRecord) {
	if t.log != nil {
		t.log.Error("fatal error captured, terminating after grace delay",
			"error_id", rec.ID, "name", rec.Name, "grace", fatalGraceDelay)
	}
	go func() {
		time.Sleep(fatalGraceDelay)
		t.flush()
		t.exit(1)
	}()
}

// TopPatterns returns the n most frequent patterns.
func (t *Tracker) TopPatterns(n int) []domain.ErrorPattern { return t.matcher.Top(n) }

// RecentPatterns returns the n most recently seen patterns.
func (t *Tracker) RecentPatterns(n int) []domain.ErrorPattern { return t.matcher.Recent(n) }

// CleanupPatterns removes patterns older than maxAge.
func (t *Tracker) CleanupPatterns(maxAge time.Duration) int { return t.matcher.Cleanup(maxAge) }
