package batch

import "sync"

// Group drives several independent queues together. There is no ordering
// between queues; each one keeps its own FIFO order.
type Group struct {
	queues []*Queue
	mu     sync.RWMutex
}

func NewGroup(queues ...*Queue) *Group {
	return &Group{queues: append([]*Queue(nil), queues...)}
}

func (g *Group) Add(q *Queue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues = append(g.queues, q)
}

func (g *Group) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.queues)
}

func (g *Group) snapshot() []*Queue {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Queue(nil), g.queues...)
}

// FlushAll stops at the first queue that fails.
func (g *Group) FlushAll() error {
	for _, q := range g.snapshot() {
		if err := q.FlushUpdates(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) StartBatchingAll() error {
	for _, q := range g.snapshot() {
		if err := q.StartBatching(); err != nil {
			return err
		}
	}
	return nil
}

// EndBatchingAll stops at the first queue that fails.
func (g *Group) EndBatchingAll() error {
	for _, q := range g.snapshot() {
		if err := q.StopBatching(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) TotalQueueSize() int {
	total := 0
	for _, q := range g.snapshot() {
		total += q.QueueSize()
	}
	return total
}
