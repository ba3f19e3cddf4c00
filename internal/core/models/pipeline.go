package models

// Operation is a deferred zero-argument mutation held by a batch queue.
type Operation func()

type BatchStats struct {
	Queued    int
	Capacity  int
	Batching  bool
	Executed  int64
	Rejected  int64
	Discarded int64
}
