package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/crystalsignal/internal/config"
	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/metrics"
)

type cell struct {
	value int
}

type computation struct {
	compute func() int
}

func assertAccounting(t *testing.T, m *Manager) {
	t.Helper()

	var cells, computations int
	for _, g := range m.Groups() {
		cells += g.CellCount
		computations += g.ComputationCount
	}

	stats := m.GetStats()
	assert.Equal(t, cells, stats.ActiveCells)
	assert.Equal(t, computations, stats.ActiveComputations)
	assert.Equal(t, m.GroupCount(), stats.TrackedGroups)
	assert.Equal(t, (cells+computations)*1024+stats.TrackedGroups*512, stats.EstimatedMemoryBytes)
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager()

	assert.Equal(t, 10*1024*1024, m.MaxMemoryBytes())
	assert.Equal(t, 10*1024*1024, m.MemoryLimit())
	assert.False(t, m.AdaptiveManagementEnabled())
	assert.Equal(t, models.MemoryStats{}, m.GetStats())
	assert.Equal(t, 0, m.GroupCount())

	custom := NewManagerWithMemoryLimit(2048)
	assert.Equal(t, 2048, custom.MaxMemoryBytes())
	assert.Equal(t, 2048, custom.MemoryLimit())

	split := NewManagerWithLimits(4096, 1024)
	assert.Equal(t, 4096, split.MaxMemoryBytes())
	assert.Equal(t, 1024, split.MemoryLimit())
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(config.MemoryConfig{
		MaxMemory:          "2mb",
		MemoryLimit:        "1mb",
		AdaptiveManagement: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*1024*1024, m.MaxMemoryBytes())
	assert.Equal(t, 1024*1024, m.MemoryLimit())
	assert.True(t, m.AdaptiveManagementEnabled())

	_, err = NewManagerFromConfig(config.MemoryConfig{MaxMemory: "huge"})
	assert.Error(t, err)
}

func TestEndToEndScenario(t *testing.T) {
	m := NewManager()

	name, err := m.CreateGroup("a")
	require.NoError(t, err)
	assert.Equal(t, "a", name)

	for i := 0; i < 3; i++ {
		_, err := AddCell(m, "a", &cell{value: i})
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := AddComputation(m, "a", computation{compute: func() int { return i }})
		require.NoError(t, err)
	}

	assert.Equal(t, models.MemoryStats{
		ActiveCells:          3,
		ActiveComputations:   2,
		TrackedGroups:        1,
		EstimatedMemoryBytes: 5632,
	}, m.GetMemoryStats())
}

func TestAddReturnsSameHandle(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("form")

	c := &cell{value: 7}
	got, err := AddCell(m, "form", c)
	require.NoError(t, err)
	assert.Same(t, c, got)

	got.value = 8
	assert.Equal(t, 8, c.value, "the registered handle must stay usable by the caller")

	n, err := AddComputation(m, "form", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

// Registrations to unknown groups succeed without counting anything.
// Verify intended: a stricter manager would return MemoryManagementFailed.
func TestAddToMissingGroupIsSilentNoop(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("real")

	c := &cell{}
	got, err := AddCell(m, "raal", c)
	assert.NoError(t, err)
	assert.Same(t, c, got)

	_, err = AddComputation(m, "raal", c)
	assert.NoError(t, err)

	assert.Equal(t, 0, m.TotalCells())
	assert.Equal(t, 0, m.TotalComputations())
	assert.Equal(t, 1, m.GroupCount())
	assertAccounting(t, m)
}

func TestDefaultGroupRegistration(t *testing.T) {
	m := NewManager()

	_, err := AddCellToDefault(m, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalCells(), "default group must be created explicitly")

	_, _ = m.CreateGroup(DefaultGroup)
	_, _ = AddCellToDefault(m, 1)
	_, _ = AddComputationToDefault(m, 2)

	g, ok := m.Group(DefaultGroup)
	require.True(t, ok)
	assert.Equal(t, 1, g.CellCount)
	assert.Equal(t, 1, g.ComputationCount)
}

func TestCreateGroupOverwrites(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("dialog")
	_, _ = AddCell(m, "dialog", 1)
	_, _ = AddCell(m, "dialog", 2)

	_, err := m.CreateGroup("dialog")
	require.NoError(t, err)

	g, ok := m.Group("dialog")
	require.True(t, ok)
	assert.True(t, g.IsEmpty(), "re-creating a group resets its counts")
	assert.Equal(t, 1, m.GroupCount())
	assertAccounting(t, m)
}

func TestAccountingIdentity(t *testing.T) {
	m := NewManager()

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("group-%d", i)
		_, _ = m.CreateGroup(name)
		for j := 0; j <= i; j++ {
			_, _ = AddCell(m, name, j)
		}
		for j := 0; j < i; j++ {
			_, _ = AddComputation(m, name, j)
		}
		assertAccounting(t, m)
	}

	require.NoError(t, m.RemoveCell("group-4"))
	assertAccounting(t, m)
	require.NoError(t, m.RemoveComputation("group-3"))
	assertAccounting(t, m)
	require.NoError(t, m.RemoveGroup("group-2"))
	assertAccounting(t, m)

	assert.Equal(t, 1+2+4+4, m.TotalCells())
	assert.Equal(t, 0+1+2+4, m.TotalComputations())
}

func TestRemoveHandles(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("list")
	_, _ = AddCell(m, "list", 1)

	t.Run("missing group", func(t *testing.T) {
		err := m.RemoveCell("nope")
		assert.True(t, models.IsKind(err, models.MemoryManagementFailed))
		assert.EqualError(t, err, "Memory management operation failed: group not found: nope")
	})

	t.Run("count never goes negative", func(t *testing.T) {
		require.NoError(t, m.RemoveCell("list"))

		err := m.RemoveCell("list")
		assert.True(t, models.IsKind(err, models.UpdateFailed))

		err = m.RemoveComputation("list")
		assert.True(t, models.IsKind(err, models.UpdateFailed))

		g, _ := m.Group("list")
		assert.Equal(t, 0, g.CellCount)
		assert.Equal(t, 0, g.ComputationCount)
		assertAccounting(t, m)
	})
}

func TestRemoveGroup(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("one")
	_, _ = AddCell(m, "one", 1)

	require.NoError(t, m.RemoveGroup("one"))
	assert.Equal(t, 0, m.GroupCount())
	assert.Equal(t, models.MemoryStats{}, m.GetStats())

	assert.NoError(t, m.RemoveGroup("one"), "removing an unknown group is not an error")
	assert.NoError(t, m.CleanupGroup("one"))
}

func TestCleanupEmptyGroupsSelectivity(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("empty")
	_, _ = m.CreateGroup("busy")
	_, _ = AddCell(m, "busy", 1)

	before := m.GroupCount()
	removed, err := m.CleanupEmptyGroups()
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.Equal(t, before-1, m.GroupCount())

	_, ok := m.Group("busy")
	assert.True(t, ok)
	_, ok = m.Group("empty")
	assert.False(t, ok)
	assertAccounting(t, m)

	removed, err = m.CleanupLowPriorityGroups()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestForceCleanupAll(t *testing.T) {
	m := NewManager()
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("g%d", i)
		_, _ = m.CreateGroup(name)
		_, _ = AddCell(m, name, i)
	}

	require.NoError(t, m.ForceCleanupAll())
	assert.Equal(t, 0, m.GroupCount())
	assert.Equal(t, models.MemoryStats{}, m.GetStats())

	_, _ = m.CreateGroup("again")
	require.NoError(t, m.CleanupAll())
	assert.Equal(t, 0, m.GroupCount())
}

func TestAdaptiveCleanup(t *testing.T) {
	t.Run("budget above limit cleans empty groups", func(t *testing.T) {
		m := NewManagerWithLimits(2048, 1024)
		_, _ = m.CreateGroup("empty")
		_, _ = m.CreateGroup("busy")
		_, _ = AddCell(m, "busy", 1)

		require.NoError(t, m.AdaptiveCleanup())
		assert.Equal(t, 1, m.GroupCount())
	})

	t.Run("budget equal to limit is a no-op", func(t *testing.T) {
		m := NewManager()
		_, _ = m.CreateGroup("empty")

		require.NoError(t, m.AdaptiveCleanup())
		assert.Equal(t, 1, m.GroupCount())
	})

	t.Run("ignores live usage", func(t *testing.T) {
		m := NewManagerWithLimits(1024, 4096)
		_, _ = m.CreateGroup("empty")
		_, _ = m.CreateGroup("busy")
		_, _ = AddCell(m, "busy", 1)
		_, _ = AddCell(m, "busy", 2)

		assert.False(t, m.IsMemoryWithinLimits())
		require.NoError(t, m.AdaptiveCleanup())
		assert.Equal(t, 2, m.GroupCount())
	})
}

func TestMemoryLimits(t *testing.T) {
	m := NewManagerWithMemoryLimit(5632)
	_, _ = m.CreateGroup("a")
	for i := 0; i < 3; i++ {
		_, _ = AddCell(m, "a", i)
	}
	_, _ = AddComputation(m, "a", 0)
	_, _ = AddComputation(m, "a", 1)

	assert.True(t, m.IsMemoryWithinLimits(), "usage equal to the budget is within limits")
	assert.InDelta(t, 100.0, m.MemoryUsagePercentage(), 1e-9)

	_, _ = AddCell(m, "a", 3)
	assert.False(t, m.IsMemoryWithinLimits())

	half := NewManagerWithMemoryLimit(3072)
	_, _ = half.CreateGroup("a")
	_, _ = AddCell(half, "a", 0)
	assert.InDelta(t, 50.0, half.MemoryUsagePercentage(), 1e-9)
}

func TestStatsAreSnapshots(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("a")
	_, _ = AddCell(m, "a", 1)

	snapshot := m.GetStats()
	_, _ = AddCell(m, "a", 2)

	assert.Equal(t, 1, snapshot.ActiveCells, "returned stats must not alias the manager")
	assert.Equal(t, 2, m.GetStats().ActiveCells)

	g, _ := m.Group("a")
	g.CellCount = 100
	assert.Equal(t, 2, m.TotalCells(), "returned groups must not alias the registry")

	require.NoError(t, m.UpdateMemoryStats())
	assert.Equal(t, 2, m.GetStats().ActiveCells)
}

func TestGroupsOrdered(t *testing.T) {
	m := NewManager()
	for _, name := range []string{"tabs", "alert", "menu"} {
		_, _ = m.CreateGroup(name)
	}

	names := make([]string, 0, 3)
	for _, g := range m.Groups() {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"alert", "menu", "tabs"}, names)
}

func TestManagerRecordsMetrics(t *testing.T) {
	mt := metrics.NewMetrics()
	m := NewManager(WithMetrics(mt))

	_, _ = m.CreateGroup("a")
	_, _ = AddCell(m, "a", 1)
	_, _ = m.CleanupEmptyGroups()

	for _, op := range []string{"create_group", "add_cell", "cleanup_empty_groups"} {
		stats, ok := mt.Operation(op)
		require.True(t, ok, op)
		assert.Equal(t, int64(1), stats.Calls, op)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	m := NewManager()
	_, _ = m.CreateGroup("shared")

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				_, _ = AddCell(m, "shared", i)
			}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}

	assert.Equal(t, 800, m.GetStats().ActiveCells)
	assertAccounting(t, m)
}

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}
