// Link transport over UDP datagrams. Every node on the segment shares one port; datagrams are
// sent to the configured "air" destinations (normally the subnet broadcast address) and each
// receiver keeps only those addressed to it or to the broadcast address on its channel.
//
// Datagram layout:
//
//	magic(2) | channel(1) | flags(1) | source(6) | destination(6) | payload
//
// With a link secret configured the payload is nonce || ChaCha20-Poly1305 ciphertext and the
// header is authenticated.
package udplink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"smarthub/internal/global"
	"smarthub/internal/link"
	"smarthub/internal/logctx"
	"sync"
	"sync/atomic"
)

const (
	headerLen = 16

	flagSealed byte = 1 << 0
)

var magic = [2]byte{'S', 'H'}

type Options struct {
	Listen  string   // local bind address, e.g. ":47474"
	Air     []string // datagram destinations
	Channel uint8
	Local   link.Address // zero = first hardware interface address
	Secret  []byte       // empty = payloads in the clear
}

type Transport struct {
	ctx    context.Context
	conn   *net.UDPConn
	air    []*net.UDPAddr
	local  link.Address
	chann  uint8
	sealer *sealer

	mu        sync.RWMutex
	peers     map[link.Address]uint8
	onReceive link.ReceiveFunc
	onStatus  link.SendStatusFunc

	closed atomic.Bool
	wg     sync.WaitGroup

	Metrics MetricStorage
}

func (opts *Options) setDefaults() {
	if opts.Listen == "" {
		opts.Listen = fmt.Sprintf(":%d", global.LinkDefaultPort)
	}
	if len(opts.Air) == 0 {
		opts.Air = []string{fmt.Sprintf("255.255.255.255:%d", global.LinkDefaultPort)}
	}
	if opts.Channel == 0 {
		opts.Channel = global.LinkDefaultChannel
	}
}

// Opens the link socket and starts receiving
func New(ctx context.Context, opts Options) (transport *Transport, err error) {
	opts.setDefaults()

	local := opts.Local
	if local == (link.Address{}) {
		local, err = hardwareAddress()
		if err != nil {
			err = fmt.Errorf("failed to determine local link address: %w", err)
			return
		}
	}

	seal, err := newSealer(opts.Secret, opts.Channel)
	if err != nil {
		return
	}

	var air []*net.UDPAddr
	for _, dest := range opts.Air {
		var addr *net.UDPAddr
		addr, err = net.ResolveUDPAddr("udp4", dest)
		if err != nil {
			err = fmt.Errorf("invalid link destination %q: %w", dest, err)
			return
		}
		air = append(air, addr)
	}

	conn, err := listenShared(ctx, opts.Listen)
	if err != nil {
		return
	}

	transport = &Transport{
		ctx:    logctx.AppendCtxTag(ctx, global.NSLink),
		conn:   conn,
		air:    air,
		local:  local,
		chann:  opts.Channel,
		sealer: seal,
		peers:  make(map[link.Address]uint8),
	}

	transport.wg.Add(1)
	go transport.receive()

	logctx.LogEvent(transport.ctx, global.VerbosityStandard, global.InfoLog,
		"Link up on %s as %s (channel %d, sealed=%v)\n", conn.LocalAddr(), local, opts.Channel, seal != nil)
	return
}

func (transport *Transport) LocalAddress() (addr link.Address) {
	addr = transport.local
	return
}

// Bound socket address
func (transport *Transport) ListenAddr() (addr *net.UDPAddr) {
	addr = transport.conn.LocalAddr().(*net.UDPAddr)
	return
}

func (transport *Transport) OnReceive(fn link.ReceiveFunc) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.onReceive = fn
}

func (transport *Transport) OnSendStatus(fn link.SendStatusFunc) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.onStatus = fn
}

// Registers a peer. Sending to an unregistered address is refused.
func (transport *Transport) AddPeer(addr link.Address, channel uint8) (err error) {
	if channel != 0 && channel != transport.chann {
		err = fmt.Errorf("peer %s on channel %d, link is on channel %d", addr, channel, transport.chann)
		return
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.peers[addr] = transport.chann
	return
}

func (transport *Transport) PeerExists(addr link.Address) (exists bool) {
	transport.mu.RLock()
	defer transport.mu.RUnlock()
	_, exists = transport.peers[addr]
	return
}

func (transport *Transport) Send(to link.Address, data []byte) (err error) {
	if transport.closed.Load() {
		err = link.ErrClosed
		return
	}
	if len(data) > global.LinkMaxPayload {
		err = fmt.Errorf("%w: %d bytes", link.ErrPayloadTooLarge, len(data))
		return
	}
	if !transport.PeerExists(to) {
		err = fmt.Errorf("%w: %s", link.ErrUnknownPeer, to)
		return
	}

	header := transport.header(to)
	payload := data
	if transport.sealer != nil {
		header[3] |= flagSealed
		payload, err = transport.sealer.seal(header, data)
		if err != nil {
			return
		}
	}
	datagram := append(header, payload...)

	var sendErr error
	for _, dest := range transport.air {
		_, writeErr := transport.conn.WriteToUDP(datagram, dest)
		if writeErr != nil {
			sendErr = errors.Join(sendErr, fmt.Errorf("%s: %w", dest, writeErr))
		}
	}

	status := link.SendSuccess
	if sendErr != nil {
		status = link.SendFail
		transport.Metrics.SendFailed.Add(1)
		err = fmt.Errorf("failed to send to %s: %w", to, sendErr)
	} else {
		transport.Metrics.Sent.Add(1)
	}

	transport.mu.RLock()
	notify := transport.onStatus
	transport.mu.RUnlock()
	if notify != nil {
		notify(to, status)
	}
	return
}

// Stops receiving and releases the socket
func (transport *Transport) Close() (err error) {
	if transport.closed.Swap(true) {
		return
	}
	err = transport.conn.Close()
	transport.wg.Wait()
	return
}

func (transport *Transport) header(to link.Address) (header []byte) {
	header = make([]byte, headerLen, headerLen+global.LinkMaxPayload+transport.sealer.overhead())
	header[0], header[1] = magic[0], magic[1]
	header[2] = transport.chann
	copy(header[4:10], transport.local[:])
	copy(header[10:16], to[:])
	return
}

func (transport *Transport) receive() {
	defer transport.wg.Done()
	defer func() {
		if fatalError := recover(); fatalError != nil {
			stack := debug.Stack()
			logctx.LogEvent(transport.ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in link receiver: %v\n%s", fatalError, stack)
		}
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := transport.conn.ReadFromUDP(buf)
		if err != nil {
			if transport.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			logctx.LogEvent(transport.ctx, global.VerbosityStandard, global.WarnLog,
				"link read failed: %v\n", err)
			continue
		}
		transport.handle(buf[:n])
	}
}

func (transport *Transport) handle(datagram []byte) {
	if len(datagram) < headerLen || datagram[0] != magic[0] || datagram[1] != magic[1] {
		transport.Metrics.Rejected.Add(1)
		return
	}
	if datagram[2] != transport.chann {
		return
	}

	var from, to link.Address
	copy(from[:], datagram[4:10])
	copy(to[:], datagram[10:16])
	if from == transport.local {
		// Our own broadcast looping back
		return
	}
	if to != transport.local && to != link.Broadcast {
		return
	}

	header := datagram[:headerLen]
	payload := datagram[headerLen:]
	sealed := header[3]&flagSealed != 0
	switch {
	case transport.sealer != nil && !sealed:
		transport.Metrics.Rejected.Add(1)
		logctx.LogEvent(transport.ctx, global.VerbosityDebug, global.WarnLog,
			"dropped unsealed datagram from %s\n", from)
		return
	case transport.sealer != nil:
		var err error
		payload, err = transport.sealer.open(header, payload)
		if err != nil {
			transport.Metrics.Rejected.Add(1)
			logctx.LogEvent(transport.ctx, global.VerbosityDebug, global.WarnLog,
				"dropped datagram from %s: %v\n", from, err)
			return
		}
	case sealed:
		transport.Metrics.Rejected.Add(1)
		return
	}

	if len(payload) > global.LinkMaxPayload {
		transport.Metrics.Truncated.Add(1)
		payload = payload[:global.LinkMaxPayload]
	}
	transport.Metrics.Received.Add(1)

	transport.mu.RLock()
	deliver := transport.onReceive
	transport.mu.RUnlock()
	if deliver == nil {
		return
	}

	// Receive buffer is reused for the next datagram
	deliver(from, append([]byte(nil), payload...))
}
