// Network uplink state: whether the hub can reach its backend network, and how to join one.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrNotConfigured = errors.New("no network credentials configured")

type Credentials struct {
	SSID     string
	Password string
}

type Monitor interface {
	Connected(ctx context.Context) (connected bool, err error)
}

type Controller interface {
	Monitor
	// Joins the configured network
	Connect(ctx context.Context) (err error)
	// Replaces the configured network and joins it
	Configure(ctx context.Context, creds Credentials) (err error)
}

// Controller for hosts where the uplink is managed outside the hub
// (wired hosts, containers, tests). State is set by the owner.
type Manual struct {
	up atomic.Bool

	mu    sync.Mutex
	creds Credentials
}

func NewManual(up bool) (manual *Manual) {
	manual = &Manual{}
	manual.up.Store(up)
	return
}

func (manual *Manual) Connected(context.Context) (connected bool, err error) {
	connected = manual.up.Load()
	return
}

func (manual *Manual) Connect(context.Context) (err error) {
	return
}

func (manual *Manual) Configure(_ context.Context, creds Credentials) (err error) {
	manual.mu.Lock()
	defer manual.mu.Unlock()
	manual.creds = creds
	return
}

func (manual *Manual) SetConnected(up bool) {
	manual.up.Store(up)
}

// Last applied credentials
func (manual *Manual) Credentials() (creds Credentials) {
	manual.mu.Lock()
	defer manual.mu.Unlock()
	creds = manual.creds
	return
}
