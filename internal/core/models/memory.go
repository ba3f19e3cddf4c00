package models

// Fixed accounting constants. The byte figure is an estimate, not a measurement.
const (
	UnitCost      = 1024
	GroupOverhead = 512

	DefaultMaxMemoryBytes = 10 * 1024 * 1024
)

// MemoryStats is an immutable snapshot of the registry. It is always
// recomputed and replaced as a whole, never updated field by field.
type MemoryStats struct {
	ActiveCells          int
	ActiveComputations   int
	TrackedGroups        int
	EstimatedMemoryBytes int
}

// EstimateMemory applies the accounting model:
// (cells + computations) * UnitCost + groups * GroupOverhead.
func EstimateMemory(cells, computations, groups int) int {
	return (cells+computations)*UnitCost + groups*GroupOverhead
}

// NewMemoryStats builds a snapshot whose estimate is consistent with its counts.
func NewMemoryStats(cells, computations, groups int) MemoryStats {
	return MemoryStats{
		ActiveCells:          cells,
		ActiveComputations:   computations,
		TrackedGroups:        groups,
		EstimatedMemoryBytes: EstimateMemory(cells, computations, groups),
	}
}

// TotalHandles returns the number of cells and computations combined.
func (ms MemoryStats) TotalHandles() int {
	return ms.ActiveCells + ms.ActiveComputations
}
