// Package batch defers mutations into a capacity-bounded FIFO queue and runs
// them together, so a burst of writes costs one scheduling pass.
package batch

import (
	"math"
	"sync"
	"time"

	"github.com/genc-murat/crystalsignal/internal/core/models"
)

const DefaultMaxBatchSize = 1000

const (
	growFactor   = 1.5
	shrinkFactor = 0.8
)

var errBatchFull = models.NewBatchedUpdateFailed("Maximum batch size exceeded")

// Queue never holds more than its capacity; a full queue rejects enqueue
// instead of dropping older work. Batching mode only describes when the
// caller intends to drain, it never blocks QueueUpdate.
//
// Operations run outside the queue lock. Anything an operation enqueues
// waits for the next drain.
type Queue struct {
	updates      []models.Operation
	maxBatchSize int
	batching     bool

	executed  int64
	rejected  int64
	discarded int64

	mu sync.Mutex
}

func NewQueue() *Queue {
	return NewQueueWithSize(DefaultMaxBatchSize)
}

// NewQueueWithSize builds a queue holding at most maxBatchSize operations. A
// size of zero rejects every enqueue.
func NewQueueWithSize(maxBatchSize int) *Queue {
	if maxBatchSize < 0 {
		maxBatchSize = 0
	}
	return &Queue{
		updates:      make([]models.Operation, 0),
		maxBatchSize: maxBatchSize,
	}
}

func (q *Queue) QueueUpdate(op func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) >= q.maxBatchSize {
		q.rejected++
		recordRejected(q.maxBatchSize)
		return errBatchFull
	}

	q.updates = append(q.updates, op)
	recordQueued(q.maxBatchSize)
	return nil
}

// StartBatching is idempotent.
func (q *Queue) StartBatching() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.batching = true
	return nil
}

// StopBatching runs every queued operation in order, then leaves batching mode.
// Operations enqueued by the drained operations themselves are not run: they
// stay queued for the next flush, so the queue may be non-empty on return.
func (q *Queue) StopBatching() error {
	q.drain("stop")

	q.mu.Lock()
	defer q.mu.Unlock()
	q.batching = false
	return nil
}

// FlushUpdates runs every queued operation in order without touching
// batching mode.
func (q *Queue) FlushUpdates() error {
	q.drain("flush")
	return nil
}

// FlushInBatches drains the queue and runs it in consecutive chunks of size.
func (q *Queue) FlushInBatches(size int) error {
	if size <= 0 {
		return models.NewBatchedUpdateFailed("flush chunk size must be positive")
	}

	updates := q.take()
	for len(updates) > 0 {
		n := size
		if n > len(updates) {
			n = len(updates)
		}
		q.run(updates[:n], "chunk")
		updates = updates[n:]
	}
	return nil
}

// ClearUpdates discards queued operations without running any of them.
func (q *Queue) ClearUpdates() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.updates)
	q.updates = make([]models.Operation, 0)
	q.discarded += int64(n)
	recordDiscarded(n)
	return nil
}

func (q *Queue) ClearQueue() {
	_ = q.ClearUpdates()
}

// take swaps the pending operations out under the lock.
func (q *Queue) take() []models.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	updates := q.updates
	q.updates = make([]models.Operation, 0, len(updates))
	return updates
}

func (q *Queue) drain(reason string) {
	q.run(q.take(), reason)
}

func (q *Queue) run(updates []models.Operation, reason string) {
	start := time.Now()
	for _, op := range updates {
		op()
	}
	recordDrain(len(updates), time.Since(start), reason)

	q.mu.Lock()
	q.executed += int64(len(updates))
	q.mu.Unlock()
}

// AutoTuneBatchSize grows the capacity of a full queue by half (at least by
// one) and shrinks a queue that is less than half used by a fifth. The
// capacity never drops below the number of pending operations or below one.
func (q *Queue) AutoTuneBatchSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	current := q.maxBatchSize
	pending := len(q.updates)

	switch {
	case current > 0 && pending >= current:
		grown := int(math.Ceil(float64(current) * growFactor))
		if grown <= current {
			grown = current + 1
		}
		q.maxBatchSize = grown
	case pending < current/2:
		tuned := int(float64(current) * shrinkFactor)
		if tuned < pending {
			tuned = pending
		}
		if tuned < 1 {
			tuned = 1
		}
		q.maxBatchSize = tuned
	}
	return q.maxBatchSize
}

func (q *Queue) IsBatching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batching
}

func (q *Queue) QueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

func (q *Queue) MaxBatchSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxBatchSize
}

func (q *Queue) Stats() models.BatchStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return models.BatchStats{
		Queued:    len(q.updates),
		Capacity:  q.maxBatchSize,
		Batching:  q.batching,
		Executed:  q.executed,
		Rejected:  q.rejected,
		Discarded: q.discarded,
	}
}
