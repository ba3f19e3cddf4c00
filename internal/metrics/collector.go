package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/genc-murat/crystalsignal/internal/core/models"
)

// StatsSource is anything that can hand out a MemoryStats snapshot.
type StatsSource interface {
	GetStats() models.MemoryStats
}

// BudgetSource additionally knows the byte budget the snapshot is measured against.
type BudgetSource interface {
	StatsSource
	MaxMemoryBytes() int
	MemoryUsagePercentage() float64
}

// StatsCollector reports the latest snapshot of a StatsSource as gauges on
// every scrape. It never triggers a recomputation on the source.
type StatsCollector struct {
	source StatsSource

	activeCells        *prometheus.Desc
	activeComputations *prometheus.Desc
	trackedGroups      *prometheus.Desc
	estimatedBytes     *prometheus.Desc
	maxBytes           *prometheus.Desc
	usagePercent       *prometheus.Desc
}

func NewStatsCollector(source StatsSource, constLabels prometheus.Labels) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "memory", name), help, nil, constLabels)
	}
	return &StatsCollector{
		source:             source,
		activeCells:        desc("active_cells", "Reactive cells registered across all groups."),
		activeComputations: desc("active_computations", "Derived computations registered across all groups."),
		trackedGroups:      desc("tracked_groups", "Number of resource groups."),
		estimatedBytes:     desc("estimated_bytes", "Estimated bytes held by registered handles and groups."),
		maxBytes:           desc("max_bytes", "Configured hard memory budget."),
		usagePercent:       desc("usage_percent", "Estimated bytes as a percentage of the hard budget."),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCells
	ch <- c.activeComputations
	ch <- c.trackedGroups
	ch <- c.estimatedBytes
	if _, ok := c.source.(BudgetSource); ok {
		ch <- c.maxBytes
		ch <- c.usagePercent
	}
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.GetStats()

	ch <- prometheus.MustNewConstMetric(c.activeCells, prometheus.GaugeValue, float64(stats.ActiveCells))
	ch <- prometheus.MustNewConstMetric(c.activeComputations, prometheus.GaugeValue, float64(stats.ActiveComputations))
	ch <- prometheus.MustNewConstMetric(c.trackedGroups, prometheus.GaugeValue, float64(stats.TrackedGroups))
	ch <- prometheus.MustNewConstMetric(c.estimatedBytes, prometheus.GaugeValue, float64(stats.EstimatedMemoryBytes))

	if b, ok := c.source.(BudgetSource); ok {
		ch <- prometheus.MustNewConstMetric(c.maxBytes, prometheus.GaugeValue, float64(b.MaxMemoryBytes()))
		ch <- prometheus.MustNewConstMetric(c.usagePercent, prometheus.GaugeValue, b.MemoryUsagePercentage())
	}
}
