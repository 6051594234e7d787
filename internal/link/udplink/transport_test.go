package udplink

import (
	"bytes"
	"context"
	"errors"
	"net"
	"smarthub/internal/global"
	"smarthub/internal/link"
	"testing"
	"time"
)

var (
	masterAddr = link.Address{0x24, 0x6f, 0x28, 0x00, 0x00, 0x01}
	slaveAddr  = link.Address{0x24, 0x6f, 0x28, 0x00, 0x00, 0x02}
)

type received struct {
	from link.Address
	data []byte
}

// Receiver node plus a sender node aimed at it
func newPair(t *testing.T, receiverSecret, senderSecret []byte) (receiver, sender *Transport, inbox chan received) {
	t.Helper()
	ctx := context.Background()

	receiver, err := New(ctx, Options{
		Listen: "127.0.0.1:0",
		Air:    []string{"127.0.0.1:9"},
		Local:  masterAddr,
		Secret: receiverSecret,
	})
	if err != nil {
		t.Fatalf("failed to open receiver: %v", err)
	}
	t.Cleanup(func() { receiver.Close() })

	sender, err = New(ctx, Options{
		Listen: "127.0.0.1:0",
		Air:    []string{receiver.ListenAddr().String()},
		Local:  slaveAddr,
		Secret: senderSecret,
	})
	if err != nil {
		t.Fatalf("failed to open sender: %v", err)
	}
	t.Cleanup(func() { sender.Close() })

	inbox = make(chan received, 16)
	receiver.OnReceive(func(from link.Address, data []byte) {
		inbox <- received{from, data}
	})
	return
}

func expectDelivery(t *testing.T, inbox chan received, from link.Address, want []byte) {
	t.Helper()
	select {
	case got := <-inbox:
		if got.from != from {
			t.Fatalf("expected sender %s, got %s", from, got.from)
		}
		if !bytes.Equal(got.data, want) {
			t.Fatalf("expected payload %x, got %x", want, got.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a datagram, got none")
	}
}

func expectNothing(t *testing.T, inbox chan received) {
	t.Helper()
	select {
	case got := <-inbox:
		t.Fatalf("expected no delivery, got %x from %s", got.data, got.from)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSendReceive(t *testing.T) {
	secret := []byte("correct horse battery staple")

	tests := []struct {
		name           string
		receiverSecret []byte
		senderSecret   []byte
		to             link.Address
		delivered      bool
	}{
		{"clear unicast", nil, nil, masterAddr, true},
		{"clear broadcast", nil, nil, link.Broadcast, true},
		{"sealed unicast", secret, secret, masterAddr, true},
		{"wrong secret", secret, []byte("guess"), masterAddr, false},
		{"unsealed on sealed link", secret, nil, masterAddr, false},
		{"addressed to another node", nil, nil, link.Address{1, 2, 3, 4, 5, 6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sender, inbox := newPair(t, tt.receiverSecret, tt.senderSecret)

			if err := sender.AddPeer(tt.to, 0); err != nil {
				t.Fatalf("failed to add peer: %v", err)
			}
			payload := []byte{0x82, 0x01, 0x83, 0x00, 0x01, 0xf9, 0x4d, 0x60}
			if err := sender.Send(tt.to, payload); err != nil {
				t.Fatalf("expected send to succeed, got %v", err)
			}

			if tt.delivered {
				expectDelivery(t, inbox, slaveAddr, payload)
			} else {
				expectNothing(t, inbox)
			}
		})
	}
}

func TestSendRefused(t *testing.T) {
	_, sender, _ := newPair(t, nil, nil)

	var statuses []link.SendStatus
	sender.OnSendStatus(func(_ link.Address, status link.SendStatus) {
		statuses = append(statuses, status)
	})

	err := sender.Send(masterAddr, []byte("hi"))
	if !errors.Is(err, link.ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}

	if err := sender.AddPeer(masterAddr, 0); err != nil {
		t.Fatalf("failed to add peer: %v", err)
	}
	err = sender.Send(masterAddr, make([]byte, global.LinkMaxPayload+1))
	if !errors.Is(err, link.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("expected refused sends to skip status callbacks, got %v", statuses)
	}

	if err := sender.Send(masterAddr, []byte("hi")); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}
	if len(statuses) != 1 || statuses[0] != link.SendSuccess {
		t.Fatalf("expected one success status, got %v", statuses)
	}

	if err := sender.AddPeer(masterAddr, global.LinkDefaultChannel+1); err == nil {
		t.Fatalf("expected peer on a foreign channel to be refused")
	}

	sender.Close()
	if err := sender.Send(masterAddr, []byte("hi")); !errors.Is(err, link.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOversizedDatagramTruncated(t *testing.T) {
	receiver, _, inbox := newPair(t, nil, nil)

	raw, err := net.DialUDP("udp4", nil, receiver.ListenAddr())
	if err != nil {
		t.Fatalf("failed to dial receiver: %v", err)
	}
	defer raw.Close()

	payload := bytes.Repeat([]byte{0xab}, global.LinkMaxPayload+40)
	datagram := []byte{magic[0], magic[1], global.LinkDefaultChannel, 0}
	datagram = append(datagram, slaveAddr[:]...)
	datagram = append(datagram, masterAddr[:]...)
	datagram = append(datagram, payload...)

	if _, err := raw.Write(datagram); err != nil {
		t.Fatalf("failed to write datagram: %v", err)
	}

	expectDelivery(t, inbox, slaveAddr, payload[:global.LinkMaxPayload])
	if got := receiver.Metrics.Truncated.Load(); got != 1 {
		t.Fatalf("expected 1 truncated datagram, got %d", got)
	}
}
