// Signal handling, configuration reloads and service manager readiness for the hub process.
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Datagram socket the service manager listens on, set only when started as a notify unit
const EnvNotifySocket string = "NOTIFY_SOCKET"

// One KEY=VALUE assignment of the readiness protocol
type assignment struct {
	key   string
	value string
}

func (a assignment) String() string {
	return a.key + "=" + a.value
}

// Hub is reloading its configuration. The monotonic stamp lets the manager order it
// against the READY=1 that follows.
func NotifyReload(ctx context.Context) (err error) {
	usec, err := monotonicMicros()
	if err != nil {
		err = fmt.Errorf("failed to read monotonic clock: %w", err)
		return
	}

	err = notify(ctx,
		assignment{"RELOADING", "1"},
		assignment{"MONOTONIC_USEC", fmt.Sprint(usec)},
	)
	return
}

// Hub has finished starting or reloading
func NotifyReady(ctx context.Context) (err error) {
	err = notify(ctx, assignment{"READY", "1"})
	return
}

func NotifyStopping(ctx context.Context) (err error) {
	err = notify(ctx, assignment{"STOPPING", "1"})
	return
}

// Single status line for the service manager. Newlines would start a new assignment so they are flattened.
func NotifyStatus(ctx context.Context, status string) (err error) {
	err = notify(ctx, assignment{"STATUS", strings.ReplaceAll(status, "\n", " ")})
	return
}

func monotonicMicros() (usec int64, err error) {
	var ts unix.Timespec
	err = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	if err != nil {
		return
	}
	usec = ts.Nano() / int64(time.Microsecond)
	return
}

// Socket path as the kernel expects it. A leading '@' names an abstract socket.
func notifyAddr(path string) (addr *net.UnixAddr) {
	if strings.HasPrefix(path, "@") {
		path = "\x00" + path[1:]
	}
	addr = &net.UnixAddr{Name: path, Net: "unixgram"}
	return
}

// Writes the assignments as one datagram. Outside a notify unit there is nobody to tell.
func notify(ctx context.Context, assignments ...assignment) (err error) {
	path := os.Getenv(EnvNotifySocket)
	if path == "" {
		return
	}

	lines := make([]string, 0, len(assignments))
	for _, a := range assignments {
		lines = append(lines, a.String())
	}
	payload := strings.Join(lines, "\n")

	conn, err := net.DialUnix("unixgram", nil, notifyAddr(path))
	if err != nil {
		err = fmt.Errorf("failed to reach service manager at %s: %w", path, err)
		return
	}
	defer conn.Close()

	_, err = conn.Write([]byte(payload))
	if err != nil {
		err = fmt.Errorf("failed to send %q to service manager: %w", lines[0], err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"Service manager notified: %s\n", strings.Join(lines, ", "))
	return
}
