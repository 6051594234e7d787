package hub

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"smarthub/internal/codec"
	"smarthub/internal/global"
	"smarthub/internal/link"
	"smarthub/internal/logctx"
	"smarthub/internal/logstore"
	"smarthub/pkg/frame"
	"sync"
	"sync/atomic"
	"time"
)

// Upper bound of datagrams consumed in one tick so the rest of the tick always runs
const maxDrainPerTick = 1024

// Frames decoded from one origin during a tick
type batch struct {
	from   link.Address
	frames []frame.Frame
}

// Single-threaded ingestion loop. It owns the durable log; metric collection reaches it
// through storeMu, which is never held across network calls.
type Loop struct {
	hc *Context

	accumulators map[link.Address]*codec.Accumulator

	storeMu            sync.Mutex
	store              *logstore.Store
	lastStorageAttempt time.Time

	lastPing   time.Time
	connecting atomic.Bool
	wg         sync.WaitGroup

	Metrics MetricStorage
}

func NewLoop(hc *Context) (loop *Loop) {
	loop = &Loop{
		hc:           hc,
		accumulators: make(map[link.Address]*codec.Accumulator),
	}
	return
}

// Ticks until the context is cancelled, then flushes and closes the log
func (loop *Loop) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSIngest)

	ticker := time.NewTicker(global.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			loop.wg.Wait()
			loop.Close(ctx)
			return
		case <-ticker.C:
			loop.Tick(ctx)
		}
	}
}

// One pass over keepalive, drain, stamp, dispatch and storage recovery
func (loop *Loop) Tick(ctx context.Context) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			loop.Metrics.Panics.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in ingestion tick: %v\n%s", fatalError, debug.Stack())
		}
	}()

	now := loop.hc.now()

	loop.keepalive(ctx, now)

	batches := loop.drain(ctx)

	var local []frame.Frame
	if loop.hc.Local != nil {
		local = loop.hc.Local.Drain(maxDrainPerTick)
	}
	if len(local) > 0 {
		batches = append(batches, batch{from: loop.hc.LocalAddr, frames: local})
	}

	outgoing := loop.stamp(ctx, batches, now)

	loop.dispatch(ctx, outgoing)
	loop.recoverStorage(ctx, now)
}

// Broadcasts a ping at most once per interval; failures are only logged
func (loop *Loop) keepalive(ctx context.Context, now time.Time) {
	if !loop.lastPing.IsZero() && now.Sub(loop.lastPing) < global.BroadcastPingInterval {
		return
	}
	loop.lastPing = now

	err := loop.ping(now)
	if err != nil {
		loop.Metrics.PingFailed.Add(1)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"Broadcast ping failed: %v\n", err)
		return
	}
	loop.Metrics.PingSent.Add(1)
}

func (loop *Loop) ping(now time.Time) (err error) {
	f, err := loop.hc.Registry.New("ping")
	if err != nil {
		return
	}
	err = loop.hc.Registry.SetTimestamp(&f, uint64(now.UnixMilli()))
	if err != nil {
		return
	}
	data, err := f.Serialize()
	if err != nil {
		return
	}
	err = loop.hc.Transport.Send(link.Broadcast, data)
	return
}

// Empties the receive queue into per-origin accumulators.
// Batches keep the order in which origins first appeared.
func (loop *Loop) drain(ctx context.Context) (batches []batch) {
	datagrams := loop.hc.Inbox.Drain(maxDrainPerTick)
	if len(datagrams) == 0 {
		return
	}

	index := make(map[link.Address]int)
	for _, dg := range datagrams {
		loop.Metrics.DatagramsIn.Add(1)

		acc, ok := loop.accumulators[dg.From]
		if !ok {
			acc = codec.NewAccumulator(global.DefaultMaxAccumulated)
			loop.accumulators[dg.From] = acc
		}

		frames, err := acc.Feed(dg.Data)
		if err != nil {
			loop.Metrics.DecodeResets.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"Discarding %d buffered bytes from %s: %v\n", acc.Buffered(), dg.From, err)
			acc.Reset()
		}
		if len(frames) == 0 {
			continue
		}
		loop.Metrics.FramesDecoded.Add(uint64(len(frames)))

		pos, seen := index[dg.From]
		if !seen {
			pos = len(batches)
			index[dg.From] = pos
			batches = append(batches, batch{from: dg.From})
		}
		batches[pos].frames = append(batches[pos].frames, frames...)
	}
	return
}

// Resolves each origin to its device id and stamps id and receive time on every frame.
// Frames whose fields do not fit their schema are dropped.
func (loop *Loop) stamp(ctx context.Context, batches []batch, now time.Time) (outgoing []frame.Frame) {
	millis := uint64(now.UnixMilli())

	for _, b := range batches {
		id, err := loop.hc.Identities.Resolve(ctx, b.from)
		if err != nil {
			loop.Metrics.FramesDropped.Add(uint64(len(b.frames)))
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"Dropping %d frames from %s: no device id: %v\n", len(b.frames), b.from, err)
			continue
		}

		for _, f := range b.frames {
			err = loop.hc.Registry.SetDeviceID(&f, id)
			if err == nil {
				err = loop.hc.Registry.SetTimestamp(&f, millis)
			}
			if err == nil {
				// Value fields arrive as the peer encoded them
				err = loop.hc.Registry.Validate(f)
			}
			if err != nil {
				loop.Metrics.FramesDropped.Add(1)
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"Dropping frame of type %d from device %d: %v\n", f.Type, id, err)
				continue
			}
			outgoing = append(outgoing, f)
		}

		if loop.hc.Indicator != nil {
			loop.hc.Indicator.DeviceActivity(id)
		}
	}
	return
}

// Sends to the backend when one is reachable, otherwise persists
func (loop *Loop) dispatch(ctx context.Context, frames []frame.Frame) {
	ctx = logctx.AppendCtxTag(ctx, global.NSDispatch)

	online := loop.hc.Uplink.IsConnected()

	if online && loop.hc.Delivery.Connected() {
		frames = append(frames, loop.backlog(ctx)...)

		for _, f := range frames {
			err := loop.hc.Delivery.Send(ctx, f)
			if err != nil {
				loop.Metrics.SendFailed.Add(1)
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"Failed to deliver frame: %v\n", err)
				continue
			}
			loop.Metrics.FramesSent.Add(1)
		}
		return
	}

	if online {
		loop.connectAsync(ctx)
	}
	loop.persist(ctx, frames)
}

// One read from the durable log
func (loop *Loop) backlog(ctx context.Context) (frames []frame.Frame) {
	loop.storeMu.Lock()
	defer loop.storeMu.Unlock()

	if loop.store == nil {
		return
	}

	frames, err := loop.store.Read(ctx)
	if errors.Is(err, logstore.ErrCorrupt) {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"Skipped undecodable log bytes: %v\n", err)
	} else if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"Failed reading log backlog: %v\n", err)
	}
	loop.Metrics.BacklogRead.Add(uint64(len(frames)))
	loop.dropFailedStore(ctx)
	return
}

func (loop *Loop) persist(ctx context.Context, frames []frame.Frame) {
	if len(frames) == 0 {
		return
	}

	loop.storeMu.Lock()
	defer loop.storeMu.Unlock()

	for i, f := range frames {
		if loop.store == nil {
			loop.Metrics.FramesDropped.Add(uint64(len(frames) - i))
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"Dropped %d frames: no backend and no log storage\n", len(frames)-i)
			return
		}

		err := loop.store.Write(ctx, f)
		if err != nil {
			loop.Metrics.FramesDropped.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"Failed to write frame to log: %v\n", err)
			loop.dropFailedStore(ctx)
			continue
		}
		loop.Metrics.FramesStored.Add(1)
	}
}

// Starts a backend connection attempt unless one is already running
func (loop *Loop) connectAsync(ctx context.Context) {
	if !loop.connecting.CompareAndSwap(false, true) {
		return
	}

	loop.wg.Add(1)
	go func() {
		defer loop.wg.Done()
		defer loop.connecting.Store(false)

		err := loop.hc.Delivery.Connect(ctx)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
				"Backend connect failed: %v\n", err)
		}
	}()
}

// Re-opens the log once the retry interval has passed
func (loop *Loop) recoverStorage(ctx context.Context, now time.Time) {
	loop.storeMu.Lock()
	defer loop.storeMu.Unlock()

	loop.dropFailedStore(ctx)
	if loop.store != nil {
		return
	}
	if !loop.lastStorageAttempt.IsZero() && now.Sub(loop.lastStorageAttempt) < global.StorageRetryInterval {
		return
	}
	loop.lastStorageAttempt = now

	err := loop.openStorage(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"Log storage still unavailable: %v\n", err)
		return
	}
	loop.Metrics.StorageRecovered.Add(1)
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Log storage opened\n")
}

func (loop *Loop) openStorage(ctx context.Context) (err error) {
	vol, err := loop.hc.Medium.Mount()
	if err != nil {
		err = fmt.Errorf("%w: %w", logstore.ErrStorageUnavailable, err)
		return
	}
	store, err := logstore.Open(ctx, vol)
	if err != nil {
		return
	}
	loop.store = store
	return
}

func (loop *Loop) dropFailedStore(ctx context.Context) {
	if loop.store == nil || !loop.store.Failed() {
		return
	}
	logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
		"Log storage failed, retrying every %s\n", global.StorageRetryInterval)
	_ = loop.store.Close()
	loop.store = nil
}

// Opens the log ahead of the first tick. Absence is not fatal; ticks keep retrying.
func (loop *Loop) Start(ctx context.Context) {
	loop.recoverStorage(ctx, loop.hc.now())
}

// Writes out whatever the log still buffers and closes it
func (loop *Loop) Close(ctx context.Context) {
	loop.storeMu.Lock()
	defer loop.storeMu.Unlock()

	if loop.store == nil {
		return
	}
	err := loop.store.FlushPartial()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"Failed to flush log buffer: %v\n", err)
	}
	err = loop.store.Close()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"Failed to close log: %v\n", err)
	}
	loop.store = nil
}

// Whether the durable log is currently open
func (loop *Loop) StorageAvailable() (available bool) {
	loop.storeMu.Lock()
	defer loop.storeMu.Unlock()
	available = loop.store != nil
	return
}
