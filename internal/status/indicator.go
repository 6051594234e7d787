// Operator-visible status signals (LEDs on the original hardware).
package status

import (
	"context"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"sync"
)

type Indicator interface {
	// Pulses the activity light of a device while its frames are stamped
	DeviceActivity(id uint8)
	// Network uplink light
	Uplink(up bool)
}

// Indicator that records state changes in the log
type Log struct {
	ctx context.Context

	mu       sync.Mutex
	uplink   bool
	known    bool
	activity map[uint8]uint64
}

func NewLog(ctx context.Context) (indicator *Log) {
	indicator = &Log{
		ctx:      logctx.AppendCtxTag(ctx, global.NSStatus),
		activity: make(map[uint8]uint64),
	}
	return
}

func (indicator *Log) DeviceActivity(id uint8) {
	indicator.mu.Lock()
	indicator.activity[id]++
	count := indicator.activity[id]
	indicator.mu.Unlock()

	logctx.LogEvent(indicator.ctx, global.VerbosityDebug, global.InfoLog,
		"device %d activity (%d frames)\n", id, count)
}

// Only transitions are logged
func (indicator *Log) Uplink(up bool) {
	indicator.mu.Lock()
	changed := !indicator.known || indicator.uplink != up
	indicator.uplink, indicator.known = up, true
	indicator.mu.Unlock()

	if !changed {
		return
	}
	state := "down"
	if up {
		state = "up"
	}
	logctx.LogEvent(indicator.ctx, global.VerbosityStandard, global.InfoLog, "uplink %s\n", state)
}

// Frames seen per device since start
func (indicator *Log) Activity() (counts map[uint8]uint64) {
	indicator.mu.Lock()
	defer indicator.mu.Unlock()

	counts = make(map[uint8]uint64, len(indicator.activity))
	for id, n := range indicator.activity {
		counts[id] = n
	}
	return
}
