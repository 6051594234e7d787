// Bounded multi-producer multi-consumer ring buffer with power-of-two capacity.
// Producers never block: a full queue rejects the item. Consumers poll without blocking.
package mpmc

import (
	"fmt"
	"runtime"
	"smarthub/internal/atomics"
	"smarthub/internal/global"
)

// Creates a new queue. itemBytes is an estimate used to refuse growth under memory pressure.
func New[T any](namespace []string, initialCapacity uint64, minCapacity, maxCapacity int, itemBytes uint64) (new *Queue[T], err error) {
	inst, err := newQueueInst[T](namespace, initialCapacity)
	if err != nil {
		return
	}

	new = &Queue[T]{
		itemBytes:   itemBytes,
		minimumSize: minCapacity,
		maximumSize: maxCapacity,
	}
	new.ActiveRead.Store(inst)
	new.ActiveWrite.Store(inst)
	return
}

func newQueueInst[T any](namespace []string, capacity uint64) (new *QueueInst[T], err error) {
	if capacity < 2 {
		err = fmt.Errorf("capacity must be greater than or equal to 2")
		return
	}
	if capacity&(capacity-1) != 0 {
		err = fmt.Errorf("capacity must be a power of two")
		return
	}

	buf := make([]cell[T], capacity)
	for i := range buf {
		buf[i].seq.Store(uint64(i))
	}

	ns := append(append([]string(nil), namespace...), global.NSQueue)
	new = &QueueInst[T]{
		Namespace: ns,
		Size:      int(capacity),
		mask:      capacity - 1,
		buf:       buf,
		Metrics:   &MetricStorage{},
	}
	return
}

// Attempts to write an element (false = queue full)
func (container *Queue[T]) Push(value T) (success bool) {
	var queue *QueueInst[T]
	for {
		queue = container.ActiveWrite.Load()
		queue.inflight.Add(1)
		if !queue.draining.Load() {
			break
		}
		// Instance is being retired, retry against the new one
		queue.inflight.Add(-1)
		runtime.Gosched()
	}
	defer queue.inflight.Add(-1)

	var pos uint64
	var slot *cell[T]
	for {
		pos = queue.tail.Load()
		slot = &queue.buf[pos&queue.mask]
		seq := slot.seq.Load()

		if seq == pos {
			if queue.tail.CompareAndSwap(pos, pos+1) {
				break
			}
		} else if seq < pos {
			queue.Metrics.PushFull.Add(1)
			return
		} else {
			runtime.Gosched()
		}
	}

	slot.data = value
	slot.seq.Store(pos + 1)

	queue.Metrics.PushSuccess.Add(1)
	depth := queue.Metrics.Depth.Add(1)
	atomics.StoreMax(&queue.Metrics.HighWater, depth)

	success = true
	return
}

// Attempts to read an element without blocking. Returns false if empty.
func (container *Queue[T]) TryPop() (out T, success bool) {
	for {
		queue := container.ActiveRead.Load()

		pos := queue.head.Load()
		slot := &queue.buf[pos&queue.mask]
		seq := slot.seq.Load()

		switch {
		case seq == pos+1:
			if !queue.head.CompareAndSwap(pos, pos+1) {
				continue
			}
			out = slot.data
			var zero T
			slot.data = zero
			slot.seq.Store(pos + queue.mask + 1)

			queue.Metrics.PopSuccess.Add(1)
			atomics.Subtract(&queue.Metrics.Depth, 1, 4)
			success = true
			return
		case seq < pos+1:
			// Empty. A retired instance hands reads over once no producer can still publish into it.
			if queue.draining.Load() && queue.inflight.Load() == 0 && slot.seq.Load() < pos+1 {
				container.ActiveRead.CompareAndSwap(queue, container.ActiveWrite.Load())
				continue
			}
			return
		default:
			// Another consumer claimed this slot first
			runtime.Gosched()
		}
	}
}

// Pops up to max items (max <= 0 = everything currently queued)
func (container *Queue[T]) Drain(max int) (items []T) {
	for max <= 0 || len(items) < max {
		item, ok := container.TryPop()
		if !ok {
			return
		}
		items = append(items, item)
	}
	return
}

// Items currently waiting across both views
func (container *Queue[T]) Len() (depth int) {
	write := container.ActiveWrite.Load()
	depth = int(write.Metrics.Depth.Load())
	if read := container.ActiveRead.Load(); read != write {
		depth += int(read.Metrics.Depth.Load())
	}
	return
}

// Capacity of the instance accepting writes
func (container *Queue[T]) Cap() (capacity int) {
	capacity = container.ActiveWrite.Load().Size
	return
}
