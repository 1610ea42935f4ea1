//go:build linux

package ingest

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// boostThreadPriority raises the calling OS thread to round-robin real-time
// scheduling so packet ingest keeps up under decode/render load. Falls back
// to a nice-level hint when real-time scheduling is not permitted.
func boostThreadPriority() {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_RR,
		Priority: 12,
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), -12); err != nil {
			slog.Debug("ingest: could not adjust receive thread priority", "error", err)
		}
	}
}
