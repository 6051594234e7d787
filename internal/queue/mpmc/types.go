package mpmc

import "sync/atomic"

type cell[T any] struct {
	seq  atomic.Uint64
	data T
}

type QueueInst[T any] struct {
	Namespace []string
	Size      int
	mask      uint64
	buf       []cell[T]
	head      atomic.Uint64
	tail      atomic.Uint64
	draining  atomic.Bool  // Gates producers from writing to this instance
	inflight  atomic.Int64 // Producers that passed the draining gate but have not published yet
	Metrics   *MetricStorage
}

// Container for split read/write views.
// Both pointers reference the same instance except while a resize is migrating.
type Queue[T any] struct {
	ActiveWrite atomic.Pointer[QueueInst[T]] // Instance producers push into
	ActiveRead  atomic.Pointer[QueueInst[T]] // Instance consumers pop from
	itemBytes   uint64                       // Estimated footprint of one item for memory checks
	minimumSize int
	maximumSize int
}
