package hub

import (
	"context"
	"smarthub/internal/identity"
	"smarthub/internal/kvstore"
	"smarthub/internal/link"
	"smarthub/internal/queue/mpmc"
	"smarthub/internal/storage"
	"smarthub/pkg/frame"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	peerA = link.Address{0x24, 0x6f, 0x28, 0x00, 0x00, 0xa1}
	peerB = link.Address{0x24, 0x6f, 0x28, 0x00, 0x00, 0xb2}
	self  = link.Address{0x24, 0x6f, 0x28, 0x00, 0x00, 0x01}
)

// Records every payload the loop puts on the air
type mockTransport struct {
	mu    sync.Mutex
	sent  [][]byte
	fail  bool
	peers map[link.Address]bool
}

func (transport *mockTransport) Send(to link.Address, data []byte) (err error) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.fail {
		err = link.ErrUnknownPeer
		return
	}
	transport.sent = append(transport.sent, data)
	return
}
func (transport *mockTransport) OnReceive(link.ReceiveFunc)       {}
func (transport *mockTransport) OnSendStatus(link.SendStatusFunc) {}
func (transport *mockTransport) AddPeer(addr link.Address, _ uint8) (err error) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.peers == nil {
		transport.peers = make(map[link.Address]bool)
	}
	transport.peers[addr] = true
	return
}
func (transport *mockTransport) PeerExists(addr link.Address) bool {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	return transport.peers[addr]
}
func (transport *mockTransport) Close() error { return nil }

func (transport *mockTransport) pings() (count int) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	count = len(transport.sent)
	return
}

// Backend stand-in
type mockDispatcher struct {
	mu        sync.Mutex
	connected bool
	connects  atomic.Int32
	failSend  bool
	failOn    int // 1-based send attempt that fails, 0 for none
	attempts  int
	frames    []frame.Frame
}

func (dispatcher *mockDispatcher) Connected() bool {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	return dispatcher.connected
}

func (dispatcher *mockDispatcher) Connect(context.Context) (err error) {
	dispatcher.connects.Add(1)
	return
}

func (dispatcher *mockDispatcher) Send(_ context.Context, f frame.Frame) (err error) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	dispatcher.attempts++
	if dispatcher.failSend || dispatcher.attempts == dispatcher.failOn {
		err = context.DeadlineExceeded
		return
	}
	dispatcher.frames = append(dispatcher.frames, f)
	return
}

func (dispatcher *mockDispatcher) setConnected(up bool) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	dispatcher.connected = up
}

func (dispatcher *mockDispatcher) received() (frames []frame.Frame) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	frames = append(frames, dispatcher.frames...)
	return
}

type mockUplink struct {
	up atomic.Bool
}

func (uplink *mockUplink) IsConnected() bool { return uplink.up.Load() }

type panickyIdentities struct{}

func (panickyIdentities) Resolve(context.Context, [6]byte) (uint8, error) {
	panic("identity table corrupted")
}

// Controllable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

type harness struct {
	ctx        context.Context
	hc         *Context
	loop       *Loop
	transport  *mockTransport
	dispatcher *mockDispatcher
	uplink     *mockUplink
	medium     *storage.Memory
	clock      *fakeClock
}

func newHarness(t *testing.T) (h *harness) {
	t.Helper()

	inbox, err := mpmc.New[Datagram]([]string{"Test"}, 4096, 4096, 4096, datagramBytes)
	if err != nil {
		t.Fatalf("failed to create inbox: %v", err)
	}
	local, err := mpmc.New[frame.Frame]([]string{"Test", "Local"}, 64, 64, 64, 128)
	if err != nil {
		t.Fatalf("failed to create local queue: %v", err)
	}

	h = &harness{
		ctx:        context.Background(),
		transport:  &mockTransport{},
		dispatcher: &mockDispatcher{},
		uplink:     &mockUplink{},
		medium:     storage.NewMemory(),
		clock:      &fakeClock{now: time.UnixMilli(1700000000000)},
	}
	h.hc = &Context{
		Registry:   frame.DefaultRegistry(),
		Transport:  h.transport,
		LocalAddr:  self,
		Identities: identity.New(kvstore.NewMemory()),
		Delivery:   h.dispatcher,
		Uplink:     h.uplink,
		Medium:     h.medium,
		Inbox:      inbox,
		Local:      local,
		Clock:      h.clock.Now,
	}
	h.loop = NewLoop(h.hc)
	return
}

func (h *harness) online(connected bool) {
	h.uplink.up.Store(true)
	h.dispatcher.setConnected(connected)
}

// Serialized temperature reading as a peer would send it
func (h *harness) reading(t *testing.T, celsius float64) (data []byte) {
	t.Helper()
	f, err := h.hc.Registry.New("temperature")
	if err != nil {
		t.Fatalf("failed to create frame: %v", err)
	}
	if err = h.hc.Registry.Set(&f, "temperature", celsius); err != nil {
		t.Fatalf("failed to set temperature: %v", err)
	}
	data, err = f.Serialize()
	if err != nil {
		t.Fatalf("failed to serialize: %v", err)
	}
	return
}

func (h *harness) push(t *testing.T, from link.Address, data []byte) {
	t.Helper()
	if !h.hc.Inbox.Push(Datagram{From: from, Data: data}) {
		t.Fatalf("inbox unexpectedly full")
	}
}
