package provision

import (
	"context"
	"errors"
	"smarthub/internal/connectivity"
	"smarthub/internal/global"
	"smarthub/internal/kvstore"
	"testing"
)

type fakeBackend struct {
	address   string
	shutdowns int
	connects  int
}

func (backend *fakeBackend) SetAddress(address string) (bool, error) {
	if address == "bad" {
		return false, errors.New("invalid address")
	}
	changed := address != backend.address
	backend.address = address
	return changed, nil
}

func (backend *fakeBackend) Shutdown() error {
	backend.shutdowns++
	return nil
}

func (backend *fakeBackend) Connect(context.Context) error {
	backend.connects++
	return nil
}

type refusingNetwork struct {
	*connectivity.Manual
}

func (refusingNetwork) Configure(context.Context, connectivity.Credentials) error {
	return errors.New("auth failed")
}

func TestApply(t *testing.T) {
	tests := []struct {
		name          string
		network       connectivity.Controller
		initial       string
		req           Request
		wantErr       bool
		wantSSID      string
		wantReconnect int
		wantHook      int
	}{
		{
			name:          "new network and backend",
			network:       connectivity.NewManual(true),
			initial:       "tcp://10.0.0.1:8094",
			req:           Request{SSID: "home", Password: "secret", ServerAddress: "tcp://10.0.0.2:8094"},
			wantSSID:      "home",
			wantReconnect: 1,
			wantHook:      1,
		},
		{
			name:          "unchanged backend keeps connection",
			network:       connectivity.NewManual(true),
			initial:       "tcp://10.0.0.1:8094",
			req:           Request{ServerAddress: "tcp://10.0.0.1:8094"},
			wantReconnect: 0,
			wantHook:      1,
		},
		{
			name:          "failed join skips backend",
			network:       refusingNetwork{connectivity.NewManual(false)},
			initial:       "tcp://10.0.0.1:8094",
			req:           Request{SSID: "home", Password: "wrong", ServerAddress: "tcp://10.0.0.2:8094"},
			wantErr:       true,
			wantReconnect: 0,
			wantHook:      0,
		},
		{
			name:     "invalid backend address",
			network:  connectivity.NewManual(true),
			initial:  "tcp://10.0.0.1:8094",
			req:      Request{ServerAddress: "bad"},
			wantErr:  true,
			wantHook: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kvstore.NewMemory()
			backend := &fakeBackend{address: tt.initial}
			handler := New(tt.network, backend, store)

			hooks := 0
			handler.AfterApply = func(context.Context) { hooks++ }

			err := handler.apply(context.Background(), tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if backend.connects != tt.wantReconnect || backend.shutdowns != tt.wantReconnect {
				t.Fatalf("expected %d reconnects, got %d shutdowns/%d connects",
					tt.wantReconnect, backend.shutdowns, backend.connects)
			}
			if hooks != tt.wantHook {
				t.Fatalf("expected %d hook calls, got %d", tt.wantHook, hooks)
			}

			ssid, _, _ := store.GetStr(global.KeyWifiSSID)
			if ssid != tt.wantSSID {
				t.Fatalf("expected persisted SSID %q, got %q", tt.wantSSID, ssid)
			}
		})
	}
}

func TestSubmit_Backlog(t *testing.T) {
	handler := New(connectivity.NewManual(true), &fakeBackend{}, kvstore.NewMemory())

	for i := range global.ConfigRequestBacklog {
		if err := handler.Submit(Request{ServerAddress: "tcp://10.0.0.1:8094"}); err != nil {
			t.Fatalf("submit %d: expected queued, got %v", i, err)
		}
	}
	if err := handler.Submit(Request{}); !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected ErrBacklogFull, got %v", err)
	}
}
