// Lazily established connection to the time-series backend.
//
// At most one connection is live. Connect is event driven (called by the ingestion loop when a
// batch finds no connection, and by configuration changes); there is no reconnect timer.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"smarthub/internal/global"
	"smarthub/internal/kvstore"
	"smarthub/internal/logctx"
	"smarthub/pkg/frame"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotConnected  = errors.New("no backend connection")
	ErrConnectFailed = errors.New("failed to connect to any backend")
	ErrConvert       = errors.New("failed to convert frame")
)

type Config struct {
	DefaultAddress string
	Gateway        string // tag identifying this hub in every point
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	Registry       *frame.Registry
	Store          kvstore.Store // holds the persisted backend address
}

type Manager struct {
	ctx  context.Context
	conf Config
	dial dialFunc

	mu         sync.Mutex
	sink       Sink
	connecting atomic.Bool

	Metrics MetricStorage
}

func (conf *Config) setDefaults() {
	if conf.DefaultAddress == "" {
		conf.DefaultAddress = global.DefaultServerAddr
	}
	if conf.Gateway == "" {
		conf.Gateway = global.Hostname
	}
	if conf.DialTimeout == 0 {
		conf.DialTimeout = global.DefaultDialTimeout
	}
	if conf.WriteTimeout == 0 {
		conf.WriteTimeout = global.DefaultWriteTimeout
	}
	if conf.Registry == nil {
		conf.Registry = frame.DefaultRegistry()
	}
}

func New(ctx context.Context, conf Config) (manager *Manager) {
	conf.setDefaults()
	manager = &Manager{
		ctx:  logctx.AppendCtxTag(ctx, global.NSDelivery),
		conf: conf,
		dial: dialSink,
	}
	return
}

// Dials the persisted backend address, falling back to (and persisting) the default address.
// Leaves any live connection alone.
func (manager *Manager) Connect(ctx context.Context) (err error) {
	if manager.Connected() {
		return
	}
	if !manager.connecting.CompareAndSwap(false, true) {
		err = fmt.Errorf("connection attempt already in progress")
		return
	}
	defer manager.connecting.Store(false)

	saved, found, err := manager.conf.Store.GetStr(global.KeyServerAddr)
	if err != nil {
		logctx.LogEvent(manager.ctx, global.VerbosityStandard, global.WarnLog,
			"failed to read persisted backend address: %v\n", err)
	}

	var sink Sink
	if found && saved != "" {
		sink, err = manager.dialAddress(ctx, saved)
		if err != nil {
			logctx.LogEvent(manager.ctx, global.VerbosityStandard, global.WarnLog,
				"backend %s unreachable, falling back to default: %v\n", saved, err)
		}
	}

	if sink == nil && saved != manager.conf.DefaultAddress {
		// Default becomes the persisted address regardless of the outcome
		persistErr := manager.conf.Store.SetStr(global.KeyServerAddr, manager.conf.DefaultAddress)
		if persistErr != nil {
			logctx.LogEvent(manager.ctx, global.VerbosityStandard, global.WarnLog,
				"failed to persist default backend address: %v\n", persistErr)
		}

		sink, err = manager.dialAddress(ctx, manager.conf.DefaultAddress)
	}

	if sink == nil {
		manager.Metrics.ConnectFailed.Add(1)
		err = fmt.Errorf("%w: %v", ErrConnectFailed, err)
		return
	}

	manager.mu.Lock()
	if manager.sink != nil {
		// Someone else won the race
		manager.mu.Unlock()
		sink.Close()
		return
	}
	manager.sink = sink
	manager.mu.Unlock()

	manager.Metrics.Connects.Add(1)
	logctx.LogEvent(manager.ctx, global.VerbosityStandard, global.InfoLog,
		"Connected to backend %s\n", sink.Endpoint())
	return
}

// Drops the live connection, if any
func (manager *Manager) Shutdown() (err error) {
	manager.mu.Lock()
	sink := manager.sink
	manager.sink = nil
	manager.mu.Unlock()

	if sink == nil {
		return
	}
	err = sink.Close()
	logctx.LogEvent(manager.ctx, global.VerbosityProgress, global.InfoLog,
		"Disconnected from backend %s\n", sink.Endpoint())
	return
}

// Writes one frame to the backend. There is no acknowledgement; a write error drops the
// connection so the next batch reconnects. A frame that cannot be converted is rejected
// without touching the connection.
func (manager *Manager) Send(ctx context.Context, f frame.Frame) (err error) {
	manager.mu.Lock()
	sink := manager.sink
	manager.mu.Unlock()

	if sink == nil {
		err = ErrNotConnected
		return
	}

	err = sink.Send(ctx, f)
	if errors.Is(err, ErrConvert) {
		manager.Metrics.Rejected.Add(1)
		return
	}
	if err != nil {
		manager.Metrics.SendFailed.Add(1)
		manager.dropIf(sink)
		err = fmt.Errorf("failed to send frame to %s: %w", sink.Endpoint(), err)
		return
	}
	manager.Metrics.Sent.Add(1)
	return
}

func (manager *Manager) Connected() (connected bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	connected = manager.sink != nil
	return
}

// Persisted backend address, or the default when none is stored
func (manager *Manager) Address() (address string, err error) {
	address, found, err := manager.conf.Store.GetStr(global.KeyServerAddr)
	if err != nil || !found || address == "" {
		address = manager.conf.DefaultAddress
	}
	return
}

// Validates and persists a new backend address. changed reports whether it differs
// from what was stored.
func (manager *Manager) SetAddress(address string) (changed bool, err error) {
	_, err = ParseEndpoint(address)
	if err != nil {
		return
	}

	current, found, err := manager.conf.Store.GetStr(global.KeyServerAddr)
	if err != nil {
		err = fmt.Errorf("failed to read persisted backend address: %w", err)
		return
	}
	if found && current == address {
		return
	}

	err = manager.conf.Store.SetStr(global.KeyServerAddr, address)
	if err != nil {
		err = fmt.Errorf("failed to persist backend address: %w", err)
		return
	}
	changed = true
	return
}

func (manager *Manager) dialAddress(ctx context.Context, address string) (sink Sink, err error) {
	endpoint, err := ParseEndpoint(address)
	if err != nil {
		return
	}

	opts := sinkOptions{
		registry:     manager.conf.Registry,
		gateway:      manager.conf.Gateway,
		dialTimeout:  manager.conf.DialTimeout,
		writeTimeout: manager.conf.WriteTimeout,
	}
	sink, err = manager.dial(ctx, endpoint, opts)
	return
}

// Clears the live connection only if it is still the one that failed
func (manager *Manager) dropIf(failed Sink) {
	manager.mu.Lock()
	if manager.sink != failed {
		manager.mu.Unlock()
		return
	}
	manager.sink = nil
	manager.mu.Unlock()

	failed.Close()
	logctx.LogEvent(manager.ctx, global.VerbosityStandard, global.WarnLog,
		"Dropped connection to backend %s after write failure\n", failed.Endpoint())
}
