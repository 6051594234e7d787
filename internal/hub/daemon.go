// Master node daemon: receives sensor frames from peers over the wireless link, stamps them
// with a device identity and delivers them to the backend, keeping a durable log while the
// backend is out of reach.
package hub

import (
	"context"
	"fmt"
	"io"
	"os"
	"smarthub/internal/atomics"
	"smarthub/internal/connectivity"
	"smarthub/internal/delivery"
	"smarthub/internal/global"
	"smarthub/internal/identity"
	"smarthub/internal/kvstore"
	"smarthub/internal/link"
	"smarthub/internal/link/udplink"
	"smarthub/internal/linkhealth"
	"smarthub/internal/localsensor"
	"smarthub/internal/logctx"
	"smarthub/internal/metrics"
	"smarthub/internal/provision"
	"smarthub/internal/queue/mpmc"
	"smarthub/internal/status"
	"smarthub/internal/storage"
	"smarthub/pkg/frame"
	"time"
)

// Rough in-memory size of one queued datagram
const datagramBytes uint64 = 6 + 24 + uint64(global.LinkMaxPayload)

// Create new hub daemon instance. configPath and envPath are re-read on reload.
func NewDaemon(cfg Config, configPath, envPath string) (new *Daemon) {
	ctx, cancel := context.WithCancel(context.Background())
	new = &Daemon{
		cfg:        cfg,
		configPath: configPath,
		envPath:    envPath,
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}
	return
}

// Starts every worker in the background - gracefully shuts down if startup error is encountered
func (daemon *Daemon) Start(globalCtx context.Context) (err error) {
	daemon.ctx, daemon.cancel = context.WithCancel(context.Background())
	daemon.ctx = logctx.Inherit(daemon.ctx, globalCtx)
	daemon.ctx = logctx.AppendCtxTag(daemon.ctx, global.NSHub)

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Starting...\n")

	global.Hostname, err = os.Hostname()
	if err != nil {
		err = fmt.Errorf("failed to determine local hostname: %w", err)
		return
	}
	global.PID = os.Getpid()
	daemon.cfg.setDefaults()

	// Persisted identities and addresses; nothing works without them
	daemon.kv, err = kvstore.OpenSQLite(daemon.cfg.KVPath, global.KVNamespace)
	if err != nil {
		err = fmt.Errorf("failed to open key-value store: %w", err)
		return
	}
	daemon.resolver = identity.New(daemon.kv)

	registry := frame.DefaultRegistry()

	daemon.inbox, err = mpmc.New[Datagram]([]string{global.NSHub, global.NSIngest},
		uint64(daemon.cfg.MinQueueSize),
		daemon.cfg.MinQueueSize,
		daemon.cfg.MaxQueueSize,
		datagramBytes)
	if err != nil {
		err = fmt.Errorf("failed creating receive queue: %w", err)
		daemon.Shutdown()
		return
	}

	// Wireless link
	daemon.transport, err = udplink.New(daemon.ctx, udplink.Options{
		Listen:  daemon.cfg.LinkListen,
		Air:     daemon.cfg.LinkAir,
		Channel: daemon.cfg.LinkChannel,
		Local:   daemon.cfg.LinkAddress,
		Secret:  daemon.cfg.LinkSecret,
	})
	if err != nil {
		err = fmt.Errorf("failed opening wireless link: %w", err)
		daemon.Shutdown()
		return
	}
	daemon.health = linkhealth.New(global.LinkFailThreshold)
	daemon.transport.OnSendStatus(daemon.health.Observe)
	err = daemon.registerBroadcast()
	if err != nil {
		daemon.Shutdown()
		return
	}

	// Backend
	daemon.delivery = delivery.New(daemon.ctx, delivery.Config{
		DefaultAddress: daemon.cfg.ServerAddress,
		Gateway:        daemon.cfg.Gateway,
		DialTimeout:    daemon.cfg.DialTimeout,
		WriteTimeout:   daemon.cfg.WriteTimeout,
		Registry:       registry,
		Store:          daemon.kv,
	})

	// Network uplink
	daemon.network = daemon.openNetwork()
	indicator := status.NewLog(daemon.ctx)
	daemon.uplink = connectivity.NewSupervisor(daemon.network, connectivity.Hooks{
		OnUp:   daemon.onUplinkUp,
		OnDown: daemon.onUplinkDown,
	}, indicator)

	daemon.provision = provision.New(daemon.network, daemon.delivery, daemon.kv)
	daemon.provision.AfterApply = func(ctx context.Context) {
		err := daemon.registerBroadcast()
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%v\n", err)
		}
	}

	// Sensors wired to the hub
	if len(daemon.cfg.Sensors) > 0 {
		daemon.local, err = mpmc.New[frame.Frame]([]string{global.NSHub, global.NSSensor}, 64, 64, 64, 128)
		if err != nil {
			err = fmt.Errorf("failed creating sensor queue: %w", err)
			daemon.Shutdown()
			return
		}
		for _, sensorConf := range daemon.cfg.Sensors {
			var poller *localsensor.Poller
			poller, err = localsensor.New(sensorConf, registry, daemon.local.Push)
			if err != nil {
				err = fmt.Errorf("invalid sensor %s: %w", sensorConf.Address, err)
				daemon.Shutdown()
				return
			}
			daemon.sensors = append(daemon.sensors, poller)
		}
	}

	// Ingestion loop
	daemon.loop = NewLoop(&Context{
		Registry:   registry,
		Transport:  daemon.transport,
		LocalAddr:  daemon.transport.LocalAddress(),
		Identities: daemon.resolver,
		Delivery:   daemon.delivery,
		Uplink:     daemon.uplink,
		Medium:     storage.Dir{Path: daemon.cfg.VolumePath},
		Indicator:  indicator,
		Inbox:      daemon.inbox,
		Local:      daemon.local,
	})
	daemon.loop.Start(daemon.ctx)
	daemon.transport.OnReceive(func(from link.Address, data []byte) {
		if !daemon.inbox.Push(Datagram{From: from, Data: data}) {
			daemon.loop.Metrics.InboxFull.Add(1)
		}
	})

	// Metrics Collector
	daemon.metricsCollector = metrics.NewGatherer(daemon.cfg.MetricCollectionInterval,
		daemon.cfg.MetricMaxAge,
		daemon.metricSources)
	daemon.metricsCollector.OnCollected = daemon.summarize

	daemon.spawn(daemon.loop.Run)
	daemon.spawn(daemon.uplink.Run)
	daemon.spawn(daemon.provision.Run)
	daemon.spawn(daemon.metricsCollector.Run)
	daemon.spawn(func(ctx context.Context) {
		daemon.health.Run(ctx, daemon.rescan)
	})
	for _, poller := range daemon.sensors {
		daemon.spawn(poller.Run)
	}
	if daemon.cfg.QueueScaleEnabled {
		inboxScaler := newScaler(daemon.metricsCollector.Registry,
			daemon.cfg.QueueScaleInterval,
			daemon.cfg.MetricCollectionInterval,
			daemon.inbox)
		daemon.spawn(inboxScaler.Run)
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Startup complete. Link address %s on channel %d, gateway %q\n",
		daemon.transport.LocalAddress(), daemon.cfg.LinkChannel, daemon.cfg.Gateway)
	return
}

func (daemon *Daemon) spawn(worker func(ctx context.Context)) {
	workerCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		worker(workerCtx)
	}()
}

// NetworkManager when requested and reachable, otherwise a fixed "up" uplink
func (daemon *Daemon) openNetwork() (network connectivity.Controller) {
	if daemon.cfg.NetworkManager == NetworkManagerDBus {
		nm, err := connectivity.DialNetworkManager()
		if err == nil {
			network = nm
			return
		}
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
			"NetworkManager unavailable, treating uplink as always up: %v\n", err)
	}
	network = connectivity.NewManual(true)
	return
}

func (daemon *Daemon) registerBroadcast() (err error) {
	err = daemon.transport.AddPeer(link.Broadcast, 0)
	if err != nil {
		err = fmt.Errorf("failed to register broadcast peer: %w", err)
	}
	return
}

// Recovery after repeated link send failures
func (daemon *Daemon) rescan(ctx context.Context) (err error) {
	err = daemon.registerBroadcast()
	if err != nil {
		return
	}
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Re-registered broadcast peer after %d consecutive send failures\n", daemon.health.Failures())
	return
}

func (daemon *Daemon) onUplinkUp(ctx context.Context) {
	err := daemon.registerBroadcast()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%v\n", err)
	}
	err = daemon.delivery.Connect(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"Backend unreachable after uplink came up: %v\n", err)
	}
}

func (daemon *Daemon) onUplinkDown(ctx context.Context) {
	err := daemon.delivery.Shutdown()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
			"Failed closing backend connection: %v\n", err)
	}
}

func (daemon *Daemon) metricSources() (sources []metrics.Collector) {
	sources = append(sources, daemon.loop, daemon.inbox, daemon.delivery, daemon.transport)
	if daemon.local != nil {
		sources = append(sources, daemon.local)
	}
	return
}

// Progress-level digest of the last collection
func (daemon *Daemon) summarize(ctx context.Context, timeSlice time.Time) {
	registry := daemon.metricsCollector.Registry
	ingest := []string{global.NSHub, global.NSIngest}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"Decoded %d, sent %d, stored %d, replayed %d, dropped %d frames; %d datagrams refused\n",
		registry.Total("frames_decoded", ingest, timeSlice, timeSlice),
		registry.Total("frames_sent", ingest, timeSlice, timeSlice),
		registry.Total("frames_stored", ingest, timeSlice, timeSlice),
		registry.Total("backlog_read", ingest, timeSlice, timeSlice),
		registry.Total("frames_dropped", ingest, timeSlice, timeSlice),
		registry.Total("inbox_full", ingest, timeSlice, timeSlice))
}

// Blocks until Shutdown has finished
func (daemon *Daemon) Run() {
	<-daemon.stopped
}

// Re-reads the config file and queues its network and backend settings as a configuration request
func (daemon *Daemon) Reload(ctx context.Context) (err error) {
	fileCfg, err := LoadConfig(daemon.configPath, daemon.envPath)
	if err != nil {
		return
	}
	newCfg, err := fileCfg.NewDaemonConf()
	if err != nil {
		return
	}

	req := provision.Request{ServerAddress: newCfg.ServerAddress}

	// Only rejoin when the credentials actually changed
	storedSSID, _, _ := daemon.kv.GetStr(global.KeyWifiSSID)
	storedPass, _, _ := daemon.kv.GetStr(global.KeyWifiPassword)
	if newCfg.WifiSSID != "" && (newCfg.WifiSSID != storedSSID || newCfg.WifiPassword != storedPass) {
		req.SSID = newCfg.WifiSSID
		req.Password = newCfg.WifiPassword
	}

	if req.SSID == "" && req.ServerAddress == "" {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Nothing to apply from %s\n", daemon.configPath)
		return
	}

	err = daemon.provision.Submit(req)
	if err != nil {
		err = fmt.Errorf("failed to queue configuration request: %w", err)
	}
	return
}

// Gracefully stop every worker (errors are printed to program log buffer)
func (daemon *Daemon) Shutdown() {
	daemon.stopOnce.Do(daemon.shutdown)
}

func (daemon *Daemon) shutdown() {
	defer close(daemon.stopped)

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown started...\n")

	// Stop accepting link traffic first
	if daemon.transport != nil {
		err := daemon.transport.Close()
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"wireless link did not close cleanly: %v\n", err)
		}
	}

	// Let the ingestion loop take what was already received
	if daemon.inbox != nil {
		queue := daemon.inbox.ActiveWrite.Load()
		drained, last := atomics.WaitUntilZero(&queue.Metrics.Depth, global.InboxDrainTimeout)
		if !drained {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"receive queue did not empty in time: dropped %d datagrams\n", last)
		}
	}

	// Workers exit; the ingestion loop flushes the durable log on its way out
	daemon.cancel()

	done := make(chan struct{})
	go func() {
		daemon.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(global.ShutdownTimeout):
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
			"Timeout: workers did not stop within %v seconds\n", global.ShutdownTimeout.Seconds())
	}

	if daemon.delivery != nil {
		_ = daemon.delivery.Shutdown()
	}
	if closer, ok := daemon.network.(io.Closer); ok {
		_ = closer.Close()
	}
	if daemon.kv != nil {
		err := daemon.kv.Close()
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"key-value store did not close cleanly: %v\n", err)
		}
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown completed\n")
}
