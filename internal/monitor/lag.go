package monitor

import (
	"math"
	"sort"
	"sync"

	"github.com/lanemc/observability-kit/internal/domain"
)

// lagRecorder accumulates scheduler-lag samples between resource ticks.
// Each drain summarizes and resets the window.
type lagRecorder struct {
	mu      sync.Mutex
	samples []float64
}

func (l *lagRecorder) observe(lagMS float64) {
	if lagMS < 0 {
		lagMS = 0
	}
	l.mu.Lock()
	l.samples = append(l.samples, lagMS)
	l.mu.Unlock()
}

func (l *lagRecorder) drain() domain.LagStats {
	l.mu.Lock()
	samples := l.samples
	l.samples = nil
	l.mu.Unlock()

	if len(samples) == 0 {
		return domain.LagStats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	idx := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if idx < 0 {
		idx = 0
	}
	return domain.LagStats{
		MeanMS:  sum / float64(len(sorted)),
		P95MS:   sorted[idx],
		MaxMS:   sorted[len(sorted)-1],
		Samples: len(sorted),
	}
}
