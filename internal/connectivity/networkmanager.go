package connectivity

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"

	// NM_STATE_CONNECTED_SITE; the backend is normally on the local site
	nmStateConnectedSite uint32 = 60
)

// Controller backed by NetworkManager on the system bus
type NetworkManager struct {
	conn *dbus.Conn

	mu     sync.Mutex
	active dbus.ObjectPath // connection profile created by Configure
}

func DialNetworkManager() (nm *NetworkManager, err error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		err = fmt.Errorf("failed to connect to system bus: %w", err)
		return
	}

	nm = &NetworkManager{conn: conn}

	// Fail early when NetworkManager is not running
	_, err = nm.state(context.Background())
	if err != nil {
		conn.Close()
		nm = nil
	}
	return
}

func (nm *NetworkManager) Connected(ctx context.Context) (connected bool, err error) {
	state, err := nm.state(ctx)
	if err != nil {
		return
	}
	connected = state >= nmStateConnectedSite
	return
}

// Re-activates the profile created by Configure. NetworkManager autoconnects
// everything else on its own.
func (nm *NetworkManager) Connect(ctx context.Context) (err error) {
	nm.mu.Lock()
	profile := nm.active
	nm.mu.Unlock()

	if profile == "" {
		return
	}

	var activePath dbus.ObjectPath
	err = nm.conn.Object(nmService, nmPath).CallWithContext(ctx,
		nmInterface+".ActivateConnection", 0, profile, dbus.ObjectPath("/"), dbus.ObjectPath("/"),
	).Store(&activePath)
	if err != nil {
		err = fmt.Errorf("failed to activate %s: %w", profile, err)
	}
	return
}

// Creates a WPA2 station profile for the network and activates it
func (nm *NetworkManager) Configure(ctx context.Context, creds Credentials) (err error) {
	if creds.SSID == "" {
		err = ErrNotConfigured
		return
	}

	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant("smarthub-" + creds.SSID),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(creds.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if creds.Password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(creds.Password),
		}
	}

	var profile, activePath dbus.ObjectPath
	err = nm.conn.Object(nmService, nmPath).CallWithContext(ctx,
		nmInterface+".AddAndActivateConnection", 0, settings, dbus.ObjectPath("/"), dbus.ObjectPath("/"),
	).Store(&profile, &activePath)
	if err != nil {
		err = fmt.Errorf("failed to add network %q: %w", creds.SSID, err)
		return
	}

	nm.mu.Lock()
	nm.active = profile
	nm.mu.Unlock()
	return
}

func (nm *NetworkManager) Close() (err error) {
	err = nm.conn.Close()
	return
}

func (nm *NetworkManager) state(ctx context.Context) (state uint32, err error) {
	var variant dbus.Variant
	err = nm.conn.Object(nmService, nmPath).CallWithContext(ctx,
		"org.freedesktop.DBus.Properties.Get", 0, nmInterface, "State",
	).Store(&variant)
	if err != nil {
		err = fmt.Errorf("failed to read NetworkManager state: %w", err)
		return
	}

	state, ok := variant.Value().(uint32)
	if !ok {
		err = fmt.Errorf("unexpected NetworkManager state type %T", variant.Value())
	}
	return
}
