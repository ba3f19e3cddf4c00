package main

import (
	"fmt"

	"github.com/genc-murat/crystalsignal/internal/batch"
	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/memory"
	"github.com/genc-murat/crystalsignal/internal/util"
)

// workload is a synthetic set of groups, each holding the same number of
// cells and computations.
type workload struct {
	prefix       string
	groups       int
	cells        int
	computations int
}

func (w workload) validate() error {
	if err := util.ValidateGroupName(w.prefix); err != nil {
		return err
	}
	if err := util.ValidateCount("groups", w.groups); err != nil {
		return err
	}
	if err := util.ValidateCount("cells", w.cells); err != nil {
		return err
	}
	return util.ValidateCount("computations", w.computations)
}

// apply creates the groups directly and routes every registration through
// q, flushing early whenever the queue fills up.
func (w workload) apply(m *memory.Manager, q *batch.Queue, chunk int) error {
	if err := w.validate(); err != nil {
		return err
	}
	if err := q.StartBatching(); err != nil {
		return err
	}

	for g := 0; g < w.groups; g++ {
		name := fmt.Sprintf("%s-%d", w.prefix, g)
		if _, err := m.CreateGroup(name); err != nil {
			return err
		}

		for i := 0; i < w.cells; i++ {
			handle := fmt.Sprintf("%s/cell-%d", name, i)
			if err := enqueue(q, chunk, func() { memory.AddCell(m, name, handle) }); err != nil {
				return err
			}
		}
		for i := 0; i < w.computations; i++ {
			handle := fmt.Sprintf("%s/computation-%d", name, i)
			if err := enqueue(q, chunk, func() { memory.AddComputation(m, name, handle) }); err != nil {
				return err
			}
		}
	}

	if chunk > 0 {
		if err := q.FlushInBatches(chunk); err != nil {
			return err
		}
	}
	return q.StopBatching()
}

func enqueue(q *batch.Queue, chunk int, op func()) error {
	err := q.QueueUpdate(op)
	if !models.IsKind(err, models.BatchedUpdateFailed) {
		return err
	}

	if chunk > 0 {
		err = q.FlushInBatches(chunk)
	} else {
		err = q.FlushUpdates()
	}
	if err != nil {
		return err
	}
	return q.QueueUpdate(op)
}
