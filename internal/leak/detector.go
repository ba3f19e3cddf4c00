// Package leak flags sustained growth of estimated memory between two
// MemoryStats snapshots. A "leak" here is percentage growth, not an
// allocation that can no longer be reached.
package leak

import (
	"sync"

	"github.com/genc-murat/crystalsignal/internal/core/models"
)

const DefaultGrowthThreshold = 0.1

// Detector holds a baseline and a current snapshot. It never observes a
// manager directly; snapshots are passed in by value.
type Detector struct {
	baseline        models.MemoryStats
	current         models.MemoryStats
	growthThreshold float64
	prevention      bool
	mu              sync.RWMutex
}

func NewDetector() *Detector {
	return NewDetectorWithThreshold(DefaultGrowthThreshold)
}

// NewDetectorWithThreshold takes the fractional growth above which a leak is
// reported, e.g. 0.25 for 25%.
func NewDetectorWithThreshold(growthThreshold float64) *Detector {
	return &Detector{growthThreshold: growthThreshold}
}

func (d *Detector) SetBaseline(stats models.MemoryStats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = stats
}

func (d *Detector) UpdateCurrent(stats models.MemoryStats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = stats
}

func (d *Detector) Baseline() models.MemoryStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baseline
}

func (d *Detector) Current() models.MemoryStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

func (d *Detector) GrowthThreshold() float64 {
	return d.growthThreshold
}

// growth is the fractional change from baseline to current; a zero baseline
// yields 0 rather than an infinite ratio.
func (d *Detector) growth() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	base := d.baseline.EstimatedMemoryBytes
	if base <= 0 {
		return 0
	}
	return float64(d.current.EstimatedMemoryBytes-base) / float64(base)
}

func (d *Detector) CheckForLeaks() (bool, error) {
	return d.growth() > d.growthThreshold, nil
}

func (d *Detector) MemoryGrowthPercentage() float64 {
	return d.growth() * 100
}

// EnableLeakPrevention sets an advisory flag. The detector itself never acts
// on it; orchestration code reads it to decide whether to force a cleanup.
func (d *Detector) EnableLeakPrevention() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevention = true
	return true
}

func (d *Detector) DisableLeakPrevention() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevention = false
}

func (d *Detector) LeakPreventionEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prevention
}
