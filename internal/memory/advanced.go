package memory

import (
	"math"
	"strconv"
	"time"

	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/util"
)

// StaleGroupAge is how old a group must be before medium-pressure cleanup
// removes it.
const StaleGroupAge = time.Hour

// fragmentationGroupSize is the average group size considered fully packed.
const fragmentationGroupSize = 10.0

// DetectMemoryPressure classifies the last snapshot against the adaptive limit.
func (m *Manager) DetectMemoryPressure() models.PressureLevel {
	return models.PressureFor(m.GetStats().EstimatedMemoryBytes, m.memoryLimit)
}

// PerformAutomaticCleanup reacts to the current pressure level: high and
// critical drop empty groups, medium drops groups older than StaleGroupAge.
// It reports whether any cleanup ran.
func (m *Manager) PerformAutomaticCleanup() (bool, error) {
	level := m.DetectMemoryPressure()
	switch level {
	case models.PressureHigh, models.PressureCritical:
		removed, err := m.CleanupEmptyGroups()
		if err != nil {
			return false, err
		}
		m.logger.Debug("automatic cleanup", "pressure", level.String(), "removed", removed)
		return true, nil
	case models.PressureMedium:
		removed, err := m.CleanupOldGroups(StaleGroupAge)
		if err != nil {
			return false, err
		}
		m.logger.Debug("automatic cleanup", "pressure", level.String(), "removed", removed)
		return true, nil
	default:
		return false, nil
	}
}

// CleanupOldGroups removes groups created more than maxAge ago regardless of
// their contents.
func (m *Manager) CleanupOldGroups(maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, models.NewMemoryManagementFailed("negative group age: " + maxAge.String())
	}
	defer m.observe("cleanup_old_groups", m.now())

	threshold := m.now().Add(-maxAge)
	return m.removeWhere(func(g *models.ResourceGroup) bool {
		return g.OlderThan(threshold)
	}), nil
}

// PredictMemoryUsage is the number of bytes a new group holding the given
// handles would add to the estimate.
func (m *Manager) PredictMemoryUsage(cells, computations int) int {
	return models.EstimateMemory(cells, computations, 1)
}

// AnalyzeFragmentation is 0 when groups average fragmentationGroupSize
// handles or more and approaches 1 as groups get sparser.
func (m *Manager) AnalyzeFragmentation() float64 {
	stats := m.GetStats()
	if stats.TrackedGroups == 0 {
		return 0
	}

	avg := float64(stats.TotalHandles()) / float64(stats.TrackedGroups)
	fragmentation := 1 - math.Min(avg/fragmentationGroupSize, 1)
	return math.Max(0, math.Min(1, fragmentation))
}

// GroupUsages reports per-group accounting ordered by name.
func (m *Manager) GroupUsages() []models.GroupUsage {
	now := m.now()
	groups := m.Groups()

	usages := make([]models.GroupUsage, 0, len(groups))
	for i := range groups {
		usages = append(usages, models.NewGroupUsage(&groups[i], now))
	}
	return usages
}

func (m *Manager) Info() map[string]string {
	stats := m.GetStats()

	return map[string]string{
		"active_cells":           strconv.Itoa(stats.ActiveCells),
		"active_computations":    strconv.Itoa(stats.ActiveComputations),
		"tracked_groups":         strconv.Itoa(stats.TrackedGroups),
		"estimated_memory_bytes": strconv.Itoa(stats.EstimatedMemoryBytes),
		"estimated_memory_human": util.FormatBytes(stats.EstimatedMemoryBytes),
		"max_memory_bytes":       strconv.Itoa(m.maxMemoryBytes),
		"max_memory_human":       util.FormatBytes(m.maxMemoryBytes),
		"memory_limit_bytes":     strconv.Itoa(m.memoryLimit),
		"memory_usage_percent":   util.FormatFloat(math.Round(m.MemoryUsagePercentage()*100) / 100),
		"memory_within_limits":   strconv.FormatBool(m.IsMemoryWithinLimits()),
		"memory_pressure":        m.DetectMemoryPressure().String(),
		"memory_fragmentation":   util.FormatFloat(math.Round(m.AnalyzeFragmentation()*100) / 100),
		"adaptive_management":    strconv.FormatBool(m.AdaptiveManagementEnabled()),
	}
}
