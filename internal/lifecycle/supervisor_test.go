package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/leak"
	"github.com/genc-murat/crystalsignal/internal/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func addCells(t *testing.T, m *memory.Manager, group string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := memory.AddCell(m, group, i)
		require.NoError(t, err)
	}
}

func growingManager(t *testing.T) (*memory.Manager, *leak.Detector, *Supervisor) {
	t.Helper()
	m := memory.NewManager(memory.WithLogger(quiet))
	_, err := m.CreateGroup("ui")
	require.NoError(t, err)
	addCells(t, m, "ui", 3)

	d := leak.NewDetector()
	s := NewSupervisor(m, d, WithLogger(quiet))
	assert.Equal(t, 3584, s.CaptureBaseline().EstimatedMemoryBytes)

	addCells(t, m, "ui", 1)
	return m, d, s
}

func TestCheckReportsLeakWithoutActing(t *testing.T) {
	_, _, s := growingManager(t)

	report, err := s.Check()
	require.NoError(t, err)

	assert.True(t, report.Leak)
	assert.InDelta(t, 28.57, report.Growth, 0.01)
	assert.Empty(t, report.Actions)
	assert.Equal(t, report.Before, report.After)
	assert.Equal(t, 4608, report.After.EstimatedMemoryBytes)
	assert.Equal(t, models.PressureNone, report.Pressure)
	assert.Zero(t, report.Freed())
}

func TestCheckForcesCleanupWhenPreventionEnabled(t *testing.T) {
	m, d, s := growingManager(t)
	d.EnableLeakPrevention()

	report, err := s.Check()
	require.NoError(t, err)

	assert.True(t, report.Leak)
	assert.Equal(t, []string{ActionForceCleanup}, report.Actions)
	assert.Equal(t, models.MemoryStats{}, report.After)
	assert.Equal(t, 4608, report.Freed())
	assert.Equal(t, 0, m.GroupCount())
}

func TestCheckRunsAdaptivePolicies(t *testing.T) {
	m := memory.NewManagerWithLimits(10000, 5000, memory.WithLogger(quiet))
	m.EnableAdaptiveManagement()

	_, err := m.CreateGroup("empty")
	require.NoError(t, err)
	_, err = m.CreateGroup("busy")
	require.NoError(t, err)
	addCells(t, m, "busy", 4)

	s := NewSupervisor(m, leak.NewDetector(), WithLogger(quiet))
	report, err := s.Check()
	require.NoError(t, err)

	assert.False(t, report.Leak, "a zero baseline never reports growth")
	assert.Equal(t, models.PressureCritical, report.Pressure)
	assert.Equal(t, []string{ActionAdaptiveCleanup, ActionAutomaticCleanup}, report.Actions)
	assert.Equal(t, 5120, report.Before.EstimatedMemoryBytes)
	assert.Equal(t, 4608, report.After.EstimatedMemoryBytes)

	_, found := m.Group("empty")
	assert.False(t, found)
	_, found = m.Group("busy")
	assert.True(t, found)
}

func TestCheckUsesClock(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSupervisor(memory.NewManager(), leak.NewDetector(),
		WithLogger(quiet), WithClock(func() time.Time { return at }))

	report, err := s.Check()
	require.NoError(t, err)
	assert.Equal(t, at, report.CheckedAt)
}

func TestStart(t *testing.T) {
	reports := make(chan Report, 8)
	s := NewSupervisor(memory.NewManager(), leak.NewDetector(),
		WithLogger(quiet),
		OnReport(func(r Report) {
			select {
			case reports <- r:
			default:
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Error(t, s.Start(ctx, 0))
	require.NoError(t, s.Start(ctx, 5*time.Millisecond))

	select {
	case r := <-reports:
		assert.False(t, r.Leak)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor produced no report")
	}
}
