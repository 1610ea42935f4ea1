// Package supervisor owns the process lifecycle around the pipeline: the
// single-instance guard, signal-to-flag translation, and the control loop
// that applies restart and record toggles with a bounded shutdown.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultPIDFile is the single-instance guard location.
const DefaultPIDFile = "/tmp/skylink-receiver.pid"

const pidFileAttempts = 3

// AcquirePIDFile creates the pid file exclusively and writes the current
// process id into it. When the file already exists, its owner is probed: a
// live owner refuses the acquisition, a stale file is removed and the
// creation retried. The returned release func removes the file.
func AcquirePIDFile(path string) (func(), error) {
	for attempt := 0; attempt < pidFileAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			release := func() {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					slog.Warn("supervisor: failed to remove pid file", "path", path, "error", err)
				}
			}
			return release, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("supervisor: failed to create pid file %s: %w", path, err)
		}

		pid, perr := readPIDFile(path)
		if perr == nil && processAlive(pid) {
			return nil, fmt.Errorf("supervisor: already running (pid %d, %s)", pid, path)
		}

		// Unreadable or stale: the owner is gone, reclaim the file.
		slog.Warn("supervisor: removing stale pid file", "path", path, "pid", pid)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("supervisor: failed to remove stale pid file %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("supervisor: failed to acquire pid file %s", path)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("supervisor: malformed pid file %s", path)
	}
	return pid, nil
}

// processAlive probes the pid with a null signal. EPERM means the process
// exists but belongs to another user, which still counts as alive.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
