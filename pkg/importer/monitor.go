package importer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bynight/pkg/metrics"
)

// Monitor benches named import steps.
type Monitor interface {
	// Bench starts timing step; the returned func stops it.
	Bench(step string) func()
}

// StepStats sums the benches of one step.
type StepStats struct {
	Step  string        `json:"step"`
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`
}

func (s StepStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// StepMonitor keeps step statistics in memory and observes them in Prometheus.
type StepMonitor struct {
	logger ectologger.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats map[string]*StepStats
}

func NewStepMonitor(logger ectologger.Logger) *StepMonitor {
	return &StepMonitor{
		logger: logger,
		now:    time.Now,
		stats:  make(map[string]*StepStats),
	}
}

func (m *StepMonitor) Bench(step string) func() {
	start := m.now()
	return func() {
		m.record(step, m.now().Sub(start))
	}
}

func (m *StepMonitor) record(step string, elapsed time.Duration) {
	metrics.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[step]
	if !ok {
		s = &StepStats{Step: step}
		m.stats[step] = s
	}
	s.Count++
	s.Total += elapsed
	if elapsed > s.Max {
		s.Max = elapsed
	}
}

// Stats returns a copy of the statistics, sorted by step name.
func (m *StepMonitor) Stats() []StepStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make([]StepStats, 0, len(m.stats))
	for _, s := range m.stats {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Step < stats[j].Step })
	return stats
}

func (m *StepMonitor) Reset() {
	m.mu.Lock()
	m.stats = make(map[string]*StepStats)
	m.mu.Unlock()
}

// Report logs the statistics at debug level.
func (m *StepMonitor) Report(ctx context.Context) {
	for _, s := range m.Stats() {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"step":    s.Step,
			"count":   s.Count,
			"total":   s.Total.String(),
			"average": s.Average().String(),
			"max":     s.Max.String(),
		}).Debug("Import step stats")
	}
}
