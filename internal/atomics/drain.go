package atomics

import (
	"sync/atomic"
	"time"
)

// Waits until value reads 0 three polls in a row, or until timeout.
func WaitUntilZero(value *atomic.Uint64, timeout time.Duration) (reachedZero bool, lastValue uint64) {
	const requiredStreak = 3
	const maxBackoff = 1 * time.Second

	backoff := 50 * time.Millisecond
	deadline := time.Now().Add(timeout)
	streak := 0

	for {
		lastValue = value.Load()
		if lastValue == 0 {
			streak++
			if streak >= requiredStreak {
				reachedZero = true
				return
			}
		} else {
			streak = 0
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(min(backoff, remaining))

		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}
