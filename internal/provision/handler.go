// Applies configuration requests (network credentials and backend address) off the
// ingestion path. Requests queue on a small bounded channel; a full queue refuses new ones.
package provision

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"smarthub/internal/connectivity"
	"smarthub/internal/global"
	"smarthub/internal/kvstore"
	"smarthub/internal/logctx"
)

var ErrBacklogFull = errors.New("configuration request backlog full")

type Request struct {
	SSID          string
	Password      string
	ServerAddress string
}

// Backend connection the handler repoints
type Backend interface {
	SetAddress(address string) (changed bool, err error)
	Shutdown() (err error)
	Connect(ctx context.Context) (err error)
}

type Handler struct {
	requests chan Request
	network  connectivity.Controller
	backend  Backend
	store    kvstore.Store

	// Runs after every applied request (re-registers link peers on the new channel)
	AfterApply func(ctx context.Context)
}

func New(network connectivity.Controller, backend Backend, store kvstore.Store) (handler *Handler) {
	handler = &Handler{
		requests: make(chan Request, global.ConfigRequestBacklog),
		network:  network,
		backend:  backend,
		store:    store,
	}
	return
}

// Queues a request without blocking
func (handler *Handler) Submit(req Request) (err error) {
	select {
	case handler.requests <- req:
	default:
		err = ErrBacklogFull
	}
	return
}

func (handler *Handler) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSProvision)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Configuration request handler started\n")

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-handler.requests:
			err := handler.apply(ctx, req)
			if err != nil {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
					"failed to apply configuration: %v\n", err)
			}
		}
	}
}

func (handler *Handler) apply(ctx context.Context, req Request) (err error) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			err = fmt.Errorf("panic while applying configuration: %v\n%s", fatalError, debug.Stack())
		}
	}()

	if req.SSID != "" {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
			"Joining network %q with new credentials\n", req.SSID)

		err = handler.network.Configure(ctx, connectivity.Credentials{SSID: req.SSID, Password: req.Password})
		if err != nil {
			// Backend is unreachable without the network, leave it alone
			err = fmt.Errorf("failed to join network %q: %w", req.SSID, err)
			return
		}

		err = handler.store.Update(func(tx kvstore.Writer) error {
			if err := tx.SetStr(global.KeyWifiSSID, req.SSID); err != nil {
				return err
			}
			return tx.SetStr(global.KeyWifiPassword, req.Password)
		})
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"failed to persist network credentials: %v\n", err)
			err = nil
		}
	}

	if req.ServerAddress != "" {
		var changed bool
		changed, err = handler.backend.SetAddress(req.ServerAddress)
		if err != nil {
			err = fmt.Errorf("failed to set backend address: %w", err)
			return
		}

		if changed {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
				"New backend address: %s\n", req.ServerAddress)
			if shutdownErr := handler.backend.Shutdown(); shutdownErr != nil {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"failed to close previous backend connection: %v\n", shutdownErr)
			}
			if connectErr := handler.backend.Connect(ctx); connectErr != nil {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"failed to connect to new backend: %v\n", connectErr)
			}
		} else {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
				"Backend address unchanged: %s\n", req.ServerAddress)
		}
	}

	if handler.AfterApply != nil {
		handler.AfterApply(ctx)
	}
	return
}
