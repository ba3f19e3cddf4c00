package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crystalsignal"

type Metrics struct {
	opCount        int64
	startTime      time.Time
	operationStats map[string]*OperationStats
	durations      *prometheus.HistogramVec
	mu             sync.RWMutex
}

type OperationStats struct {
	Calls        int64
	TotalTime    int64
	LastExecTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		operationStats: make(map[string]*OperationStats),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of memory manager operations.",
			Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01},
		}, []string{"operation"}),
	}
}

// Register exposes the operation histogram on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.durations)
}

func (m *Metrics) GetOperationCount() int64 {
	return atomic.LoadInt64(&m.opCount)
}

func (m *Metrics) AddOperation(op string, duration time.Duration) {
	atomic.AddInt64(&m.opCount, 1)
	m.durations.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.operationStats[op]
	if !exists {
		stats = &OperationStats{}
		m.operationStats[op] = stats
	}

	stats.Calls++
	stats.TotalTime += duration.Nanoseconds()
	stats.LastExecTime = time.Now()
}

// Operation returns a copy of the counters recorded for op.
func (m *Metrics) Operation(op string) (OperationStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.operationStats[op]
	if !exists {
		return OperationStats{}, false
	}
	return *stats, true
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["uptime_in_seconds"] = int(time.Since(m.startTime).Seconds())
	stats["total_operations_processed"] = m.GetOperationCount()

	opStats := make(map[string]map[string]interface{})
	for op, stat := range m.operationStats {
		opStats[op] = map[string]interface{}{
			"calls":          stat.Calls,
			"total_time_us":  stat.TotalTime / 1000,
			"avg_time_us":    stat.TotalTime / stat.Calls / 1000,
			"last_exec_time": stat.LastExecTime,
		}
	}
	stats["operationstats"] = opStats

	return stats
}
