package pipeline

import (
	"sync"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/display"
	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

// fakeInput implements mediagraph.Input with an adjustable queue level.
type fakeInput struct {
	mu     sync.Mutex
	pushed [][]byte
	queued uint64
	err    error
}

func (f *fakeInput) QueuedBytes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued
}

func (f *fakeInput) Push(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.pushed = append(f.pushed, cp)
	return f.err
}

// fakeSample is a sample with fixed payload and timestamps.
type fakeSample struct {
	data    []byte
	pts     time.Duration
	havePTS bool
	dts     time.Duration
	haveDTS bool

	mu       sync.Mutex
	released bool
}

func (s *fakeSample) Data() []byte               { return s.data }
func (s *fakeSample) PTS() (time.Duration, bool) { return s.pts, s.havePTS }
func (s *fakeSample) DTS() (time.Duration, bool) { return s.dts, s.haveDTS }

func (s *fakeSample) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

// fakeSink hands out samples pushed into its channel.
type fakeSink struct {
	ch chan mediagraph.Sample
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan mediagraph.Sample, 16)}
}

func (f *fakeSink) TryPull(timeout time.Duration) (mediagraph.Sample, bool) {
	select {
	case s := <-f.ch:
		return s, true
	case <-time.After(timeout):
		return nil, false
	}
}

// fakeBus hands out events pushed into its channel.
type fakeBus struct {
	ch chan mediagraph.Event
}

func newFakeBus() *fakeBus {
	return &fakeBus{ch: make(chan mediagraph.Event, 16)}
}

func (f *fakeBus) TimedPop(timeout time.Duration) (mediagraph.Event, bool) {
	select {
	case ev := <-f.ch:
		return ev, true
	case <-time.After(timeout):
		return mediagraph.Event{}, false
	}
}

// fakeGraph records lifecycle calls.
type fakeGraph struct {
	input *fakeInput
	sink  *fakeSink
	bus   *fakeBus

	playErr error

	mu        sync.Mutex
	playing   bool
	eosSent   bool
	shutdowns int
	closed    bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		input: &fakeInput{},
		sink:  newFakeSink(),
		bus:   newFakeBus(),
	}
}

func (g *fakeGraph) Input() mediagraph.Input { return g.input }
func (g *fakeGraph) Sink() mediagraph.Sink   { return g.sink }
func (g *fakeGraph) Bus() mediagraph.Bus     { return g.bus }

func (g *fakeGraph) Play(time.Duration) error {
	if g.playErr != nil {
		return g.playErr
	}
	g.mu.Lock()
	g.playing = true
	g.mu.Unlock()
	return nil
}

func (g *fakeGraph) SendEOS() {
	g.mu.Lock()
	g.eosSent = true
	g.mu.Unlock()
}

func (g *fakeGraph) Shutdown() {
	g.mu.Lock()
	g.playing = false
	g.shutdowns++
	g.mu.Unlock()
}

func (g *fakeGraph) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *fakeGraph) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// fakeBuilder returns a canned graph or error and keeps the last spec.
type fakeBuilder struct {
	graph    *fakeGraph
	err      error
	lastSpec mediagraph.Spec
}

func (b *fakeBuilder) Build(spec mediagraph.Spec) (mediagraph.Graph, error) {
	b.lastSpec = spec
	if b.err != nil {
		return nil, b.err
	}
	return b.graph, nil
}

// fakeDecoder records lifecycle calls and fed samples.
type fakeDecoder struct {
	initErr  error
	startErr error

	mu          sync.Mutex
	feedErr     error
	initialized bool
	running     bool
	stopped     bool
	deinited    bool
	closed      bool
	eos         bool
	fed         [][]byte
	pts         []time.Duration
}

func (d *fakeDecoder) Init(*config.Config, display.Target, int) error {
	if d.initErr != nil {
		return d.initErr
	}
	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDecoder) Start() error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDecoder) Feed(data []byte, pts time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.feedErr != nil {
		return d.feedErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.fed = append(d.fed, cp)
	d.pts = append(d.pts, pts)
	return nil
}

func (d *fakeDecoder) setFeedErr(err error) {
	d.mu.Lock()
	d.feedErr = err
	d.mu.Unlock()
}

func (d *fakeDecoder) SendEOS() {
	d.mu.Lock()
	d.eos = true
	d.mu.Unlock()
}

func (d *fakeDecoder) Stop() {
	d.mu.Lock()
	d.running = false
	d.stopped = true
	d.mu.Unlock()
}

func (d *fakeDecoder) Deinit() {
	d.mu.Lock()
	d.initialized = false
	d.deinited = true
	d.mu.Unlock()
}

func (d *fakeDecoder) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *fakeDecoder) MaxPacketSize() int { return 64 * 1024 }

func (d *fakeDecoder) fedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fed)
}

// fakeRecorder records the samples it is handed.
type fakeRecorder struct {
	mu      sync.Mutex
	samples [][]byte
	pts     []time.Duration
	closes  int
}

func (r *fakeRecorder) HandleSample(data []byte, pts time.Duration) {
	r.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	r.samples = append(r.samples, cp)
	r.pts = append(r.pts, pts)
	r.mu.Unlock()
}

func (r *fakeRecorder) Stats() record.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return record.Stats{
		Active:       r.closes == 0,
		BytesWritten: uint64(len(r.samples)),
		OutputPath:   "/tmp/fake.mp4",
	}
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) sampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *fakeRecorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}
