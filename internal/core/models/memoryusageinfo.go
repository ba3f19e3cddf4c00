package models

import "time"

type GroupUsage struct {
	// Group name
	Name string

	// Registered reactive cells
	Cells int

	// Registered derived computations
	Computations int

	// Handles plus the per-group tracking overhead, in bytes
	EstimatedBytes int

	// Time since the group was created
	Age time.Duration
}

func NewGroupUsage(g *ResourceGroup, now time.Time) GroupUsage {
	return GroupUsage{
		Name:           g.Name,
		Cells:          g.CellCount,
		Computations:   g.ComputationCount,
		EstimatedBytes: EstimateMemory(g.CellCount, g.ComputationCount, 1),
		Age:            now.Sub(g.CreatedAt),
	}
}
