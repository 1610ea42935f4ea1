package supervisor

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Flags is the signal-to-control-loop hand-off. The watcher goroutine only
// sets atomic flags; all actual work happens on the control loop's next tick,
// so signal handling stays async-safe and bursts coalesce naturally.
type Flags struct {
	exit        atomic.Bool
	restart     atomic.Bool
	startRecord atomic.Uint32
	stopRecord  atomic.Uint32
}

// NewFlags returns a cleared flag set.
func NewFlags() *Flags { return &Flags{} }

// RequestExit marks the process for shutdown, as SIGINT/SIGTERM would.
func (f *Flags) RequestExit() { f.exit.Store(true) }

// ExitRequested reports whether shutdown was requested. The flag is never
// cleared; exit is one-way.
func (f *Flags) ExitRequested() bool { return f.exit.Load() }

// TakeRestart consumes a pending restart request.
func (f *Flags) TakeRestart() bool { return f.restart.Swap(false) }

// TakeRecordToggles consumes the pending record start/stop counts. Multiple
// signals between ticks collapse into the counters.
func (f *Flags) TakeRecordToggles() (starts, stops uint32) {
	return f.startRecord.Swap(0), f.stopRecord.Swap(0)
}

// Watcher translates process signals into Flags updates from a dedicated
// goroutine.
type Watcher struct {
	ch   chan os.Signal
	done chan struct{}
}

// WatchSignals subscribes to the control signals and starts the watcher:
// SIGINT/SIGTERM request exit, SIGHUP requests a pipeline restart, SIGUSR1
// and SIGUSR2 toggle recording on and off.
func WatchSignals(flags *Flags) *Watcher {
	w := &Watcher{
		ch:   make(chan os.Signal, 8),
		done: make(chan struct{}),
	}
	signal.Notify(w.ch,
		syscall.SIGINT, syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGUSR1, syscall.SIGUSR2,
	)
	go w.run(flags)
	return w
}

func (w *Watcher) run(flags *Flags) {
	defer close(w.done)
	for sig := range w.ch {
		slog.Debug("supervisor: signal received", "signal", sig.String())
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			flags.exit.Store(true)
		case syscall.SIGHUP:
			flags.restart.Store(true)
		case syscall.SIGUSR1:
			flags.startRecord.Add(1)
		case syscall.SIGUSR2:
			flags.stopRecord.Add(1)
		}
	}
}

// Stop unsubscribes and joins the watcher goroutine.
func (w *Watcher) Stop() {
	signal.Stop(w.ch)
	close(w.ch)
	<-w.done
}
