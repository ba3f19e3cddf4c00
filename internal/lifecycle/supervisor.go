// Package lifecycle ties a memory manager to a leak detector and applies the
// cleanup policies both of them only describe.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/leak"
	"github.com/genc-murat/crystalsignal/internal/memory"
)

const (
	ActionForceCleanup     = "force_cleanup"
	ActionAdaptiveCleanup  = "adaptive_cleanup"
	ActionAutomaticCleanup = "automatic_cleanup"
)

// Report describes one supervision pass. Pressure is measured before any
// cleanup runs.
type Report struct {
	CheckedAt time.Time
	Before    models.MemoryStats
	After     models.MemoryStats
	Growth    float64
	Leak      bool
	Pressure  models.PressureLevel
	Actions   []string
}

func (r Report) Freed() int {
	return r.Before.EstimatedMemoryBytes - r.After.EstimatedMemoryBytes
}

type Supervisor struct {
	manager  *memory.Manager
	detector *leak.Detector
	logger   *slog.Logger
	onReport func(Report)
	now      func() time.Time

	mu sync.Mutex
}

type Option func(*Supervisor)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OnReport is called after every pass made by Start.
func OnReport(fn func(Report)) Option {
	return func(s *Supervisor) {
		s.onReport = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSupervisor(manager *memory.Manager, detector *leak.Detector, opts ...Option) *Supervisor {
	s := &Supervisor{
		manager:  manager,
		detector: detector,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CaptureBaseline stores the manager's current stats as the leak baseline.
func (s *Supervisor) CaptureBaseline() models.MemoryStats {
	stats := s.manager.GetStats()
	s.detector.SetBaseline(stats)
	s.logger.Debug("captured memory baseline", "estimated_bytes", stats.EstimatedMemoryBytes)
	return stats
}

// Check refreshes the stats, looks for a leak and runs whichever cleanup the
// manager and detector flags ask for. Passes never overlap.
func (s *Supervisor) Check() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{CheckedAt: s.now()}

	if err := s.manager.UpdateMemoryStats(); err != nil {
		return report, err
	}
	report.Before = s.manager.GetStats()
	report.Pressure = s.manager.DetectMemoryPressure()

	s.detector.UpdateCurrent(report.Before)
	leaking, err := s.detector.CheckForLeaks()
	if err != nil {
		return report, err
	}
	report.Leak = leaking
	report.Growth = s.detector.MemoryGrowthPercentage()

	if leaking {
		s.logger.Warn("memory growth above threshold",
			"growth_percent", report.Growth,
			"threshold", s.detector.GrowthThreshold(),
			"estimated_bytes", report.Before.EstimatedMemoryBytes)

		if s.detector.LeakPreventionEnabled() {
			if err := s.manager.ForceCleanupAll(); err != nil {
				return report, err
			}
			report.Actions = append(report.Actions, ActionForceCleanup)
		}
	}

	if s.manager.AdaptiveManagementEnabled() {
		if err := s.manager.AdaptiveCleanup(); err != nil {
			return report, err
		}
		report.Actions = append(report.Actions, ActionAdaptiveCleanup)

		cleaned, err := s.manager.PerformAutomaticCleanup()
		if err != nil {
			return report, err
		}
		if cleaned {
			report.Actions = append(report.Actions, ActionAutomaticCleanup)
		}
	}

	report.After = s.manager.GetStats()
	if len(report.Actions) > 0 {
		s.logger.Info("memory supervision pass",
			"actions", report.Actions,
			"freed_bytes", report.Freed(),
			"pressure", report.Pressure.String())
	}
	return report, nil
}

// Start runs Check every interval until ctx is done. It returns immediately.
func (s *Supervisor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("supervisor interval must be positive")
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("memory supervisor stopped")
				return
			case <-ticker.C:
				report, err := s.Check()
				if err != nil {
					s.logger.Error("memory supervision failed", "error", err)
					continue
				}
				if s.onReport != nil {
					s.onReport(report)
				}
			}
		}
	}()
	return nil
}
