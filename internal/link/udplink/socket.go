package udplink

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Opens a UDP socket that can share its port with other nodes on the same host
// and is allowed to send to broadcast addresses
func listenShared(ctx context.Context, address string) (conn *net.UDPConn, err error) {
	// Using x/sys/unix package for more up-to-date syscall numbers
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			controlErr := c.Control(func(fd uintptr) {
				for _, opt := range []int{unix.SO_REUSEADDR, unix.SO_REUSEPORT, unix.SO_BROADCAST} {
					err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
					if err != nil {
						err = fmt.Errorf("setsockopt %d: %w", opt, err)
						return
					}
				}
			})
			if controlErr != nil {
				return controlErr
			}
			return err
		},
	}

	pc, err := cfg.ListenPacket(ctx, "udp4", address)
	if err != nil {
		err = fmt.Errorf("failed to listen on %s: %w", address, err)
		return
	}
	conn = pc.(*net.UDPConn)
	return
}

// Hardware address of the first up, non-loopback interface
func hardwareAddress() (addr [6]byte, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		err = fmt.Errorf("failed to list interfaces: %w", err)
		return
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		copy(addr[:], iface.HardwareAddr)
		return
	}

	err = fmt.Errorf("no interface with a 6-byte hardware address found")
	return
}
