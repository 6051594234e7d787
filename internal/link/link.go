// Short-range peer-to-peer link between the master and slave nodes.
// Peers are addressed by 6-byte hardware addresses; a payload is at most one datagram.
package link

import (
	"errors"
	"fmt"
	"smarthub/internal/global"
)

type Address [6]byte

// Every node listens on the broadcast address
var Broadcast = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var (
	ErrUnknownPeer     = errors.New("peer not registered")
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", global.LinkMaxPayload)
	ErrClosed          = errors.New("link closed")
)

type SendStatus uint8

const (
	SendSuccess SendStatus = iota
	SendFail
)

func (status SendStatus) String() (text string) {
	switch status {
	case SendSuccess:
		text = "success"
	case SendFail:
		text = "fail"
	default:
		text = fmt.Sprintf("unknown(%d)", uint8(status))
	}
	return
}

// Callbacks run on the transport's receive goroutine and must not block
type (
	ReceiveFunc    func(from Address, data []byte)
	SendStatusFunc func(to Address, status SendStatus)
)

type Transport interface {
	Send(to Address, data []byte) (err error)
	OnReceive(fn ReceiveFunc)
	OnSendStatus(fn SendStatusFunc)
	AddPeer(addr Address, channel uint8) (err error)
	PeerExists(addr Address) (exists bool)
	Close() (err error)
}

func (addr Address) String() (text string) {
	text = fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
	return
}

// Accepts colon, dash or no separators
func ParseAddress(text string) (addr Address, err error) {
	var digits []byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ':' || c == '-' {
			continue
		}
		digits = append(digits, c)
	}
	if len(digits) != 12 {
		err = fmt.Errorf("invalid hardware address %q: expected 12 hex digits", text)
		return
	}

	for i := range addr {
		hi, ok1 := hexValue(digits[2*i])
		lo, ok2 := hexValue(digits[2*i+1])
		if !ok1 || !ok2 {
			err = fmt.Errorf("invalid hardware address %q: non-hex digit", text)
			return
		}
		addr[i] = hi<<4 | lo
	}
	return
}

func hexValue(c byte) (value byte, ok bool) {
	switch {
	case c >= '0' && c <= '9':
		value, ok = c-'0', true
	case c >= 'a' && c <= 'f':
		value, ok = c-'a'+10, true
	case c >= 'A' && c <= 'F':
		value, ok = c-'A'+10, true
	}
	return
}
