package leak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/crystalsignal/internal/core/models"
)

func bytesStats(n int) models.MemoryStats {
	return models.MemoryStats{EstimatedMemoryBytes: n}
}

func TestNewDetector(t *testing.T) {
	d := NewDetector()
	assert.Equal(t, 0.1, d.GrowthThreshold())
	assert.False(t, d.LeakPreventionEnabled())
	assert.Equal(t, models.MemoryStats{}, d.Baseline())
	assert.Equal(t, models.MemoryStats{}, d.Current())

	assert.Equal(t, 0.5, NewDetectorWithThreshold(0.5).GrowthThreshold())
}

func TestCheckForLeaksThresholdBoundary(t *testing.T) {
	tests := []struct {
		name    string
		current int
		want    bool
	}{
		{"shrink", 900, false},
		{"flat", 1000, false},
		{"9.9% growth", 1099, false},
		{"10.1% growth", 1101, true},
		{"doubled", 2000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			d.SetBaseline(bytesStats(1000))
			d.UpdateCurrent(bytesStats(tt.current))

			leaking, err := d.CheckForLeaks()
			require.NoError(t, err)
			assert.Equal(t, tt.want, leaking)
		})
	}
}

func TestMemoryGrowthPercentage(t *testing.T) {
	d := NewDetector()
	d.SetBaseline(bytesStats(1000))

	d.UpdateCurrent(bytesStats(1250))
	assert.InDelta(t, 25.0, d.MemoryGrowthPercentage(), 1e-9)

	d.UpdateCurrent(bytesStats(500))
	assert.InDelta(t, -50.0, d.MemoryGrowthPercentage(), 1e-9)
}

func TestZeroBaseline(t *testing.T) {
	d := NewDetectorWithThreshold(0)
	d.UpdateCurrent(bytesStats(1 << 20))

	leaking, err := d.CheckForLeaks()
	require.NoError(t, err)
	assert.False(t, leaking, "growth from a zero baseline is defined as 0")
	assert.Equal(t, 0.0, d.MemoryGrowthPercentage())
}

func TestSnapshotsOverwrite(t *testing.T) {
	d := NewDetector()

	d.SetBaseline(models.NewMemoryStats(1, 0, 1))
	d.SetBaseline(models.NewMemoryStats(3, 2, 1))
	assert.Equal(t, models.NewMemoryStats(3, 2, 1), d.Baseline())

	d.UpdateCurrent(models.NewMemoryStats(10, 0, 2))
	d.UpdateCurrent(models.NewMemoryStats(4, 2, 1))
	assert.Equal(t, models.NewMemoryStats(4, 2, 1), d.Current())

	stats := models.NewMemoryStats(1, 1, 1)
	d.UpdateCurrent(stats)
	stats.ActiveCells = 99
	assert.Equal(t, 1, d.Current().ActiveCells, "snapshots are stored by value")
}

func TestLeakPreventionFlagIsAdvisory(t *testing.T) {
	d := NewDetector()
	d.SetBaseline(bytesStats(1000))
	d.UpdateCurrent(bytesStats(5000))

	assert.True(t, d.EnableLeakPrevention())
	assert.True(t, d.LeakPreventionEnabled())

	leaking, _ := d.CheckForLeaks()
	assert.True(t, leaking)
	assert.Equal(t, bytesStats(5000), d.Current(), "the detector does not act on its own signal")

	d.DisableLeakPrevention()
	assert.False(t, d.LeakPreventionEnabled())
}
