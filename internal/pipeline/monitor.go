package pipeline

import (
	"log/slog"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
)

// busPollTimeout bounds each bus wait so the monitor re-checks the stop flag
// at least this often.
const busPollTimeout = 100 * time.Millisecond

// runMonitor watches the graph bus. A fatal graph error or an end-of-stream
// event requests a pipeline stop and terminates the monitor; the supervisor
// observes the self-termination through PollChild. The running flag is
// cleared before the done channel closes, so PollChild never reaps a monitor
// it could still race with.
func (p *Pipeline) runMonitor(done chan<- struct{}) {
	bus := p.graph.Bus()

	for {
		ev, ok := bus.TimedPop(busPollTimeout)
		if !ok {
			p.mu.Lock()
			stop := p.stopRequested
			p.mu.Unlock()
			if stop {
				break
			}
			continue
		}

		switch ev.Kind {
		case mediagraph.EventError:
			slog.Error("pipeline: graph error",
				"error", ev.Err,
				"debug", ev.Debug,
			)
			p.mu.Lock()
			p.encounteredError = true
			p.stopRequested = true
			p.mu.Unlock()
		case mediagraph.EventEOS:
			slog.Info("pipeline: end of stream")
			p.mu.Lock()
			p.stopRequested = true
			p.mu.Unlock()
		default:
			continue
		}
		break
	}

	p.mu.Lock()
	p.monitorRunning = false
	p.mu.Unlock()
	close(done)
}
