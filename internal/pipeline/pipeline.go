// Package pipeline owns the receiver lifecycle: it builds the media graph,
// starts the packet ingest worker, drives the hardware decoder, and runs the
// consumer and monitor goroutines. All lifecycle transitions funnel through
// one state machine with a single rollback path, so a failure at any start
// step and a normal stop release resources identically.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/decode"
	"github.com/e7canasta/skylink-receiver/internal/display"
	"github.com/e7canasta/skylink-receiver/internal/framestats"
	"github.com/e7canasta/skylink-receiver/internal/ingest"
	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

// State is the pipeline lifecycle state.
type State int

const (
	// Stopped means no resources are held; Start is legal.
	Stopped State = iota
	// Running means the graph, ingest worker, decoder, consumer and monitor
	// are all active.
	Running
	// Stopping means a stop is in progress; Start is refused.
	Stopping
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	// playWait bounds the wait for the graph's async transition to active.
	playWait = time.Second
	// defaultStopWait bounds the monitor-confirmation wait during Stop.
	defaultStopWait = 700 * time.Millisecond
)

// Pipeline is the receiver core. Collaborators are injected so the lifecycle
// is testable without a media backend.
//
// Start, Stop and PollChild are called from a single control goroutine; the
// recording operations and CurrentState may be called from any goroutine.
type Pipeline struct {
	builder     mediagraph.Builder
	newDecoder  decode.Factory
	newRecorder record.Factory

	mu               sync.Mutex
	state            State
	stopRequested    bool
	encounteredError bool

	graph    mediagraph.Graph
	receiver *ingest.Receiver

	decoder            decode.Decoder
	decoderInitialized bool
	decoderRunning     bool

	consumerDone chan struct{}
	monitorDone  chan struct{}
	// monitorRunning is cleared by the monitor goroutine itself just before
	// it exits; PollChild uses it to detect a self-terminated pipeline.
	monitorRunning bool

	// recMu guards the recorder attachment independently of the lifecycle
	// lock, so recording can be toggled while samples are flowing.
	recMu    sync.Mutex
	recorder record.Recorder

	frames *framestats.Tracker

	cfg *config.Config
}

// New creates a stopped pipeline with the given collaborators.
func New(builder mediagraph.Builder, dec decode.Factory, rec record.Factory) *Pipeline {
	return &Pipeline{
		builder:     builder,
		newDecoder:  dec,
		newRecorder: rec,
		frames:      framestats.NewTracker(),
	}
}

// CurrentState returns the lifecycle state.
func (p *Pipeline) CurrentState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start brings the pipeline from Stopped to Running: build the graph, bind
// the ingest socket, activate the graph, initialize and start the decoder,
// then spawn the consumer and monitor goroutines. Any failure rolls back
// through the same cleanup path a stop uses, leaving the pipeline Stopped
// with no resources held.
func (p *Pipeline) Start(cfg *config.Config, target display.Target, fd int) error {
	p.mu.Lock()
	if p.state != Stopped {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pipeline: start refused in state %s", state)
	}
	p.stopRequested = false
	p.encounteredError = false
	p.cfg = cfg
	p.mu.Unlock()

	p.frames.Reset()

	graph, err := p.builder.Build(GraphSpec(cfg))
	if err != nil {
		return fmt.Errorf("pipeline: graph build failed: %w", err)
	}
	p.graph = graph

	p.receiver = ingest.NewReceiver(cfg.UDPPort, cfg.VideoPayloadType, graph.Input())
	if err := p.receiver.Start(); err != nil {
		p.abortStart()
		return err
	}

	if err := graph.Play(playWait); err != nil {
		p.abortStart()
		return fmt.Errorf("pipeline: graph activation failed: %w", err)
	}

	dec, err := p.newDecoder()
	if err != nil {
		p.abortStart()
		return fmt.Errorf("pipeline: decoder creation failed: %w", err)
	}
	p.decoder = dec

	if err := dec.Init(cfg, target, fd); err != nil {
		p.abortStart()
		return fmt.Errorf("pipeline: decoder init failed: %w", err)
	}
	p.mu.Lock()
	p.decoderInitialized = true
	p.mu.Unlock()

	if err := dec.Start(); err != nil {
		p.abortStart()
		return fmt.Errorf("pipeline: decoder start failed: %w", err)
	}
	p.mu.Lock()
	p.decoderRunning = true
	p.mu.Unlock()

	p.consumerDone = make(chan struct{})
	go p.runConsumer(p.consumerDone)

	p.monitorDone = make(chan struct{})
	p.mu.Lock()
	p.monitorRunning = true
	p.mu.Unlock()
	go p.runMonitor(p.monitorDone)

	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()

	slog.Info("pipeline: running",
		"udp_port", cfg.UDPPort,
		"payload_type", cfg.VideoPayloadType,
	)
	return nil
}

// Stop brings the pipeline to Stopped. wait bounds the confirmation wait for
// the monitor goroutine; the join itself is unconditional. Zero or negative
// wait uses the default. Idempotent: stopping a stopped pipeline is a no-op.
func (p *Pipeline) Stop(wait time.Duration) {
	if wait <= 0 {
		wait = defaultStopWait
	}

	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return
	}
	p.state = Stopping
	p.stopRequested = true
	graph := p.graph
	p.mu.Unlock()

	// Drain in flow order: end-of-stream through the graph, then force it
	// idle so the sink and bus unblock their waiters.
	if graph != nil {
		graph.SendEOS()
		graph.Shutdown()
	}
	if p.receiver != nil {
		p.receiver.Stop()
	}

	if p.consumerDone != nil {
		<-p.consumerDone
		p.consumerDone = nil
	}
	if p.monitorDone != nil {
		select {
		case <-p.monitorDone:
		case <-time.After(wait):
			slog.Warn("pipeline: monitor did not confirm exit within bound",
				"wait", wait)
		}
		// The join is the correctness boundary; the bound above only times
		// the warning.
		<-p.monitorDone
		p.monitorDone = nil
	}

	p.cleanup()

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	slog.Info("pipeline: stopped")
}

// PollChild reaps a pipeline whose monitor goroutine exited on its own (bus
// error or upstream end-of-stream). When that happened, the remaining
// resources are released and the pipeline lands in Stopped; callers detect
// the transition via CurrentState. A healthy pipeline is left untouched.
func (p *Pipeline) PollChild() {
	p.mu.Lock()
	if p.state != Running || p.monitorRunning {
		p.mu.Unlock()
		return
	}
	p.state = Stopping
	p.stopRequested = true
	hadError := p.encounteredError
	graph := p.graph
	p.mu.Unlock()

	if hadError {
		slog.Error("pipeline: terminated on graph error")
	} else {
		slog.Info("pipeline: terminated on end of stream")
	}

	if graph != nil {
		graph.Shutdown()
	}
	if p.receiver != nil {
		p.receiver.Stop()
	}
	if p.consumerDone != nil {
		<-p.consumerDone
		p.consumerDone = nil
	}
	if p.monitorDone != nil {
		<-p.monitorDone
		p.monitorDone = nil
	}

	p.cleanup()

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()
}

// abortStart rolls a failed Start back through the shared cleanup path.
func (p *Pipeline) abortStart() {
	p.mu.Lock()
	p.stopRequested = true
	p.mu.Unlock()
	p.cleanup()
}

// cleanup releases everything in reverse acquisition order. Goroutines are
// already joined (or were never spawned) when this runs. Safe to call with
// any subset of resources held; nil fields are skipped.
func (p *Pipeline) cleanup() {
	if p.receiver != nil {
		p.receiver.Close()
		p.receiver = nil
	}

	p.mu.Lock()
	dec := p.decoder
	decRunning := p.decoderRunning
	decInitialized := p.decoderInitialized
	p.decoder = nil
	p.decoderRunning = false
	p.decoderInitialized = false
	p.mu.Unlock()

	if dec != nil {
		if decRunning {
			dec.Stop()
		}
		if decInitialized {
			dec.Deinit()
		}
		dec.Close()
	}

	if p.graph != nil {
		p.graph.Shutdown()
		p.graph.Close()
		p.graph = nil
	}

	// Detach the recorder under its own lock, finalize the file outside it.
	p.recMu.Lock()
	rec := p.recorder
	p.recorder = nil
	p.recMu.Unlock()
	if rec != nil {
		if err := rec.Close(); err != nil {
			slog.Warn("pipeline: recorder close failed", "error", err)
		}
	}
}

// IngestStats returns the packet ingest counters, or zeroes when the
// pipeline is not running.
func (p *Pipeline) IngestStats() ingest.Stats {
	if p.receiver == nil {
		return ingest.Stats{}
	}
	return p.receiver.Stats()
}

// FrameStats returns pacing statistics for the frames fed to the decoder.
func (p *Pipeline) FrameStats() framestats.Stats {
	return p.frames.Snapshot()
}
