package hub

import (
	"smarthub/internal/link"
	"smarthub/internal/queue/mpmc"
	"smarthub/internal/status"
	"smarthub/internal/storage"
	"smarthub/pkg/frame"
	"time"
)

// Everything the ingestion loop touches, handed over explicitly at startup
type Context struct {
	Registry  *frame.Registry
	Transport link.Transport
	LocalAddr link.Address // identity source for frames from wired sensors

	Identities Identities
	Delivery   Dispatcher
	Uplink     Uplink
	Medium     storage.Medium
	Indicator  status.Indicator

	Inbox *mpmc.Queue[Datagram]
	Local *mpmc.Queue[frame.Frame] // nil when no sensors are wired

	Clock func() time.Time
}

func (hc *Context) now() (t time.Time) {
	if hc.Clock != nil {
		t = hc.Clock()
	} else {
		t = time.Now()
	}
	return
}
