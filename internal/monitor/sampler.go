package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lanemc/observability-kit/internal/config"
	"github.com/lanemc/observability-kit/internal/domain"
	"github.com/lanemc/observability-kit/internal/store"
)

// lagProbeInterval is the cadence of the scheduler drift probe that feeds
// the lag recorder between resource ticks.
const lagProbeInterval = 100 * time.Millisecond

type processStats struct {
	cpuPercent    float64
	rss           uint64
	vms           uint64
	memPercent    float64
	uptimeSeconds float64
}

// probes groups the collection sub-steps so tests can substitute them. Each
// probe fails independently; a failed probe leaves its snapshot fields
// empty without aborting the tick.
type probes struct {
	process func() (processStats, error)
	loadAvg func() ([]float64, error)
	memory  func() (*domain.SystemMemory, error)
	disk    func() (*domain.DiskStats, error)
	network func() (*domain.NetworkStats, error)
}

// Sampler periodically captures resource snapshots into the store and
// evaluates threshold alerts. State machine: stopped -> running -> stopped.
type Sampler struct {
	store *store.Store
	cfg   config.Config
	log   *slog.Logger
	now   func() time.Time

	probes probes
	lag    *lagRecorder

	gcMu       sync.Mutex
	lastNumGC  uint32
	gcInitDone bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Sampler bound to the given store.
func New(st *store.Store, cfg config.Config, log *slog.Logger) *Sampler {
	if log != nil {
		log = log.With("component", "resource_monitor")
	}
	s := &Sampler{
		store: st,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		lag:   &lagRecorder{},
	}
	s.probes = defaultProbes()
	return s
}

func defaultProbes() probes {
	var (
		procOnce sync.Once
		proc     *process.Process
		procErr  error
	)
	return probes{
		process: func() (processStats, error) {
			procOnce.Do(func() {
				proc, procErr = process.NewProcess(int32(os.Getpid()))
			})
			if procErr != nil {
				return processStats{}, procErr
			}
			stats := processStats{}
			if cpu, err := proc.Percent(0); err == nil {
				stats.cpuPercent = cpu
			}
			if info, err := proc.MemoryInfo(); err == nil && info != nil {
				stats.rss = info.RSS
				stats.vms = info.VMS
			}
			if pct, err := proc.MemoryPercent(); err == nil {
				stats.memPercent = float64(pct)
			}
			if created, err := proc.CreateTime(); err == nil {
				stats.uptimeSeconds = time.Since(time.UnixMilli(created)).Seconds()
			}
			return stats, nil
		},
		loadAvg: func() ([]float64, error) {
			avg, err := load.Avg()
			if err != nil {
				return nil, err
			}
			return []float64{avg.Load1, avg.Load5, avg.Load15}, nil
		},
		memory: func() (*domain.SystemMemory, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return nil, err
			}
			return &domain.SystemMemory{Total: vm.Total, Available: vm.Available, Percent: vm.UsedPercent}, nil
		},
		disk: func() (*domain.DiskStats, error) {
			usage, err := disk.Usage("/")
			if err != nil {
				return nil, err
			}
			return &domain.DiskStats{Total: usage.Total, Used: usage.Used, Percent: usage.UsedPercent}, nil
		},
		network: func() (*domain.NetworkStats, error) {
			counters, err := net.IOCounters(false)
			if err != nil {
				return nil, err
			}
			if len(counters) == 0 {
				return nil, nil
			}
			return &domain.NetworkStats{BytesSent: counters[0].BytesSent, BytesRecv: counters[0].BytesRecv}, nil
		},
	}
}

// Start begins sampling: one immediate sample, then a tick every
// ResourceInterval. No-op while already running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(2)
	go s.probeLag(s.stop)
	go s.run(s.stop)
}

// Stop halts the tick and the lag probe. After Stop returns no further
// snapshot is appended. No-op while already stopped.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// Running reports the sampler state.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sampler) run(stop chan struct{}) {
	defer s.wg.Done()
	s.sample()
	ticker := time.NewTicker(s.cfg.ResourceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Samples run serially in this loop, so a probe that
			// outlives the interval delays the next tick rather
			// than overlapping it.
			s.sample()
		}
	}
}

// probeLag measures scheduler drift: how late each short timer fires
// relative to its deadline. The Go analog of event-loop lag.
func (s *Sampler) probeLag(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(lagProbeInterval)
	defer ticker.Stop()
	expected := time.Now().Add(lagProbeInterval)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.lag.observe(float64(now.Sub(expected).Microseconds()) / 1000)
			expected = now.Add(lagProbeInterval)
		}
	}
}

// sample gathers one snapshot and appends it. Every sub-probe failure is
// recovered locally; the partial snapshot is still recorded.
func (s *Sampler) sample() {
	snap := domain.ResourceSnapshot{
		Timestamp:  s.now(),
		Goroutines: runtime.NumGoroutine(),
		EventLoop:  s.lag.drain(),
		GC:         s.collectGC(),
	}
	if stats, err := s.probes.process(); err != nil {
		s.warn("process probe failed", err)
	} else {
		snap.CPUPercent = stats.cpuPercent
		snap.Memory = domain.MemoryStats{RSS: stats.rss, VMS: stats.vms, Percent: stats.memPercent}
		snap.UptimeSeconds = stats.uptimeSeconds
	}
	snap.System = s.collectSystem()

	s.store.RecordResource(snap)

	if alerts := s.evaluate(snap); len(alerts) > 0 {
		s.store.PublishAlerts(alerts)
	}
}

func (s *Sampler) collectSystem() *domain.SystemStats {
	sys := &domain.SystemStats{}
	populated := false
	if avg, err := s.probes.loadAvg(); err != nil {
		s.warn("load average probe failed", err)
	} else if len(avg) > 0 {
		sys.LoadAverage = avg
		populated = true
	}
	if memory, err := s.probes.memory(); err != nil {
		s.warn("system memory probe failed", err)
	} else if memory != nil {
		sys.Memory = memory
		populated = true
	}
	if usage, err := s.probes.disk(); err != nil {
		s.warn("disk probe failed", err)
	} else if usage != nil {
		sys.Disk = usage
		populated = true
	}
	if counters, err := s.probes.network(); err != nil {
		s.warn("network probe failed", err)
	} else if counters != nil {
		sys.Network = counters
		populated = true
	}
	if !populated {
		return nil
	}
	return sys
}

// collectGC reports pause durations of GC cycles completed since the
// previous tick.
func (s *Sampler) collectGC() domain.GCStats {
	s.gcMu.Lock()
	defer s.gcMu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if !s.gcInitDone {
		s.gcInitDone = true
		s.lastNumGC = ms.NumGC
		return domain.GCStats{}
	}
	cycles := ms.NumGC - s.lastNumGC
	if cycles == 0 {
		return domain.GCStats{}
	}
	if cycles > uint32(len(ms.PauseNs)) {
		cycles = uint32(len(ms.PauseNs))
	}
	pauses := make([]float64, 0, cycles)
	for i := ms.NumGC - cycles; i < ms.NumGC; i++ {
		pauses = append(pauses, float64(ms.PauseNs[i%uint32(len(ms.PauseNs))])/1e6)
	}
	s.lastNumGC = ms.NumGC
	return domain.GCStats{Cycles: cycles, PausesMS: pauses}
}

// evaluate compares a snapshot against the configured thresholds. Alerts
// are stateless per tick: a sustained breach re-alerts every tick.
func (s *Sampler) evaluate(snap domain.ResourceSnapshot) []domain.Alert {
	now := snap.Timestamp
	var alerts []domain.Alert
	if s.cfg.CPUThreshold > 0 && snap.CPUPercent > s.cfg.CPUThreshold {
		alerts = append(alerts, domain.Alert{
			Type:      "high_cpu",
			Severity:  "warning",
			Message:   fmt.Sprintf("CPU usage %.1f%% exceeds threshold %.1f%%", snap.CPUPercent, s.cfg.CPUThreshold),
			Value:     snap.CPUPercent,
			Threshold: s.cfg.CPUThreshold,
			Timestamp: now,
		})
	}
	if s.cfg.MemoryThreshold > 0 && snap.Memory.RSS > s.cfg.MemoryThreshold {
		alerts = append(alerts, domain.Alert{
			Type:      "high_memory",
			Severity:  "warning",
			Message:   fmt.Sprintf("resident memory %d bytes exceeds threshold %d", snap.Memory.RSS, s.cfg.MemoryThreshold),
			Value:     float64(snap.Memory.RSS),
			Threshold: float64(s.cfg.MemoryThreshold),
			Timestamp: now,
		})
	}
	lagThresholdMS := float64(s.cfg.EventLoopLagThreshold.Milliseconds())
	if lagThresholdMS > 0 && snap.EventLoop.MeanMS > lagThresholdMS {
		alerts = append(alerts, domain.Alert{
			Type:      "event_loop_lag",
			Severity:  "warning",
			Message:   fmt.Sprintf("scheduler lag %.1fms exceeds threshold %.0fms", snap.EventLoop.MeanMS, lagThresholdMS),
			Value:     snap.EventLoop.MeanMS,
			Threshold: lagThresholdMS,
			Timestamp: now,
		})
	}
	return alerts
}

func (s *Sampler) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "error", err)
	}
}
