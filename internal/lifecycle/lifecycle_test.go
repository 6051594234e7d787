package lifecycle

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

type fakeDaemon struct {
	reloads   int
	shutdowns int
	reloadErr error
}

func (daemon *fakeDaemon) Reload(context.Context) error {
	daemon.reloads++
	return daemon.reloadErr
}

func (daemon *fakeDaemon) Shutdown() {
	daemon.shutdowns++
}

func TestHandleSignals(t *testing.T) {
	tests := []struct {
		name          string
		signals       []os.Signal
		reloadErr     error
		wantReloads   int
		wantShutdowns int
	}{
		{"terminate", []os.Signal{syscall.SIGTERM}, nil, 0, 1},
		{"reloads then interrupt", []os.Signal{syscall.SIGHUP, syscall.SIGHUP, syscall.SIGINT}, nil, 2, 1},
		{"failed reload keeps running", []os.Signal{syscall.SIGHUP, syscall.SIGQUIT}, errors.New("bad config"), 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvNotifySocket, "")

			daemon := &fakeDaemon{reloadErr: tt.reloadErr}
			sigChan := make(chan os.Signal, len(tt.signals))
			for _, sig := range tt.signals {
				sigChan <- sig
			}

			done := make(chan struct{})
			go func() {
				handleSignals(context.Background(), sigChan, daemon)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("expected handler to return after the stop signal")
			}

			if daemon.reloads != tt.wantReloads || daemon.shutdowns != tt.wantShutdowns {
				t.Fatalf("expected %d reloads/%d shutdowns, got %d/%d",
					tt.wantReloads, tt.wantShutdowns, daemon.reloads, daemon.shutdowns)
			}
		})
	}
}

func TestNotify(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	listener, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	if err != nil {
		t.Fatalf("failed to create notify socket: %v", err)
	}
	defer listener.Close()
	t.Setenv(EnvNotifySocket, sockPath)

	read := func() string {
		buf := make([]byte, 256)
		listener.SetReadDeadline(time.Now().Add(time.Second))
		n, err := listener.Read(buf)
		if err != nil {
			t.Fatalf("expected notify datagram, got %v", err)
		}
		return string(buf[:n])
	}

	if err := NotifyReady(context.Background()); err != nil {
		t.Fatalf("expected ready to succeed, got %v", err)
	}
	if got := read(); got != "READY=1" {
		t.Fatalf("expected READY=1, got %q", got)
	}

	if err := NotifyReload(context.Background()); err != nil {
		t.Fatalf("expected reload to succeed, got %v", err)
	}
	if got := read(); !strings.HasPrefix(got, "RELOADING=1\nMONOTONIC_USEC=") {
		t.Fatalf("expected reloading message, got %q", got)
	}

	if err := NotifyStatus(context.Background(), "backlog 3 frames\nbackend down"); err != nil {
		t.Fatalf("expected status to succeed, got %v", err)
	}
	if got := read(); got != "STATUS=backlog 3 frames backend down" {
		t.Fatalf("expected single status line, got %q", got)
	}
}

func TestNotifyAddr(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/run/systemd/notify", "/run/systemd/notify"},
		{"@hub-notify", "\x00hub-notify"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := notifyAddr(tt.path).Name; got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNotify_NoSocket(t *testing.T) {
	t.Setenv(EnvNotifySocket, "")
	if err := NotifyStopping(context.Background()); err != nil {
		t.Fatalf("expected no-op outside a notify unit, got %v", err)
	}
}
