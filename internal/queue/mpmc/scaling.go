package mpmc

import (
	"context"
	"smarthub/internal/global"
	"smarthub/internal/logctx"

	"github.com/pbnjay/memory"
)

// Replaces the write instance with one of newCapacity. Consumers migrate once the old one drains.
func (container *Queue[T]) mutateSize(newCapacity uint64) (err error) {
	current := container.ActiveWrite.Load()

	// A migration is still in progress
	if container.ActiveRead.Load() != current {
		return
	}

	next, err := newQueueInst[T](current.Namespace[:len(current.Namespace)-1], newCapacity)
	if err != nil {
		return
	}

	current.draining.Store(true)
	container.ActiveWrite.Store(next)
	return
}

// Grows or shrinks the queue one power of two within its bounds
func (container *Queue[T]) ScaleCapacity(ctx context.Context, scaleUp, scaleDown bool) (newCapacity int) {
	current := container.ActiveWrite.Load().Size
	newCapacity = current

	switch {
	case scaleUp && current < container.maximumSize:
		newCapacity = current * 2

		// No growth when near system memory limit
		needed := uint64(newCapacity) * container.itemBytes
		if free := memory.FreeMemory(); free > 0 && needed > free {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"Refusing queue growth to %d: needs %d bytes, %d free\n", newCapacity, needed, free)
			newCapacity = current
			return
		}
	case scaleDown && current > container.minimumSize:
		newCapacity = current / 2
	default:
		return
	}

	err := container.mutateSize(uint64(newCapacity))
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"Failed to scale queue capacity: %v\n", err)
		newCapacity = current
		return
	}
	if container.ActiveWrite.Load().Size != newCapacity {
		newCapacity = current
		return
	}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"Scaled queue from %d to %d capacity\n", current, newCapacity)
	return
}

// Decides whether to scale based on the most recent depth samples
func Trend(depthValues []uint64, queueSize int) (scaleUp bool, scaleDown bool) {
	const upThresholdPct = 70.0
	const downThresholdPct = 15.0
	const requireConsistent = 3

	n := len(depthValues)
	if n < requireConsistent+1 || queueSize <= 0 {
		return
	}

	latestPct := float64(depthValues[n-1]) / float64(queueSize) * 100

	// Direction of each of the last steps must agree
	direction := 0
	for i := n - requireConsistent; i < n; i++ {
		var step int
		switch diff := int64(depthValues[i]) - int64(depthValues[i-1]); {
		case diff > 0:
			step = 1
		case diff < 0:
			step = -1
		}
		if step == 0 || (direction != 0 && step != direction) {
			return
		}
		direction = step
	}

	scaleUp = latestPct > upThresholdPct && direction > 0
	scaleDown = latestPct < downThresholdPct && direction < 0
	return
}
