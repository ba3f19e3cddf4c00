package models

import "time"

// ResourceGroup counts the reactive cells and derived computations
// registered under one name. The handles themselves are never retained.
type ResourceGroup struct {
	Name             string
	CellCount        int
	ComputationCount int
	CreatedAt        time.Time
}

func NewResourceGroup(name string, createdAt time.Time) *ResourceGroup {
	return &ResourceGroup{
		Name:      name,
		CreatedAt: createdAt,
	}
}

func (g *ResourceGroup) TotalCount() int {
	return g.CellCount + g.ComputationCount
}

func (g *ResourceGroup) IsEmpty() bool {
	return g.TotalCount() == 0
}

func (g *ResourceGroup) AddCell() {
	g.CellCount++
}

func (g *ResourceGroup) AddComputation() {
	g.ComputationCount++
}

// RemoveCell returns false when there is nothing left to remove.
func (g *ResourceGroup) RemoveCell() bool {
	if g.CellCount == 0 {
		return false
	}
	g.CellCount--
	return true
}

// RemoveComputation returns false when there is nothing left to remove.
func (g *ResourceGroup) RemoveComputation() bool {
	if g.ComputationCount == 0 {
		return false
	}
	g.ComputationCount--
	return true
}

// OlderThan reports whether the group was created before threshold.
func (g *ResourceGroup) OlderThan(threshold time.Time) bool {
	return g.CreatedAt.Before(threshold)
}
