// Package gstgraph implements the mediagraph contract on top of GStreamer
// via the go-gst bindings. Stage factories in a mediagraph.Spec map directly
// to GStreamer element factories.
package gstgraph

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
)

var initOnce sync.Once

// ensureInitialized performs the one-time global GStreamer initialization.
// Safe to call from multiple goroutines across repeated pipeline restarts.
func ensureInitialized() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// Builder builds GStreamer-backed graphs.
type Builder struct{}

// NewBuilder returns a Builder.
func NewBuilder() *Builder { return &Builder{} }

// Build constructs, configures and links the graph described by spec.
// Any element-creation or link failure tears down the partial pipeline and
// returns an error, leaving no residual state.
func (b *Builder) Build(spec mediagraph.Spec) (mediagraph.Graph, error) {
	ensureInitialized()

	pipeline, err := gst.NewPipeline(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("gstgraph: failed to create pipeline: %w", err)
	}

	g := &graph{pipeline: pipeline}

	src, err := app.NewAppSrc()
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("gstgraph: failed to create input stage: %w", err)
	}
	if spec.Input.Caps != "" {
		src.SetCaps(gst.NewCapsFromString(string(spec.Input.Caps)))
	}
	// Live streaming input: timestamp on arrival, never back-pressure the
	// producer. The producer sheds load itself by checking QueuedBytes.
	src.SetProperty("is-live", spec.Input.Live)
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("stream-type", 0) // stream
	src.SetProperty("do-timestamp", spec.Input.Live)
	src.SetProperty("block", false)
	src.SetProperty("max-bytes", spec.Input.MaxQueuedBytes)
	g.input = &appInput{src: src}

	elements := []*gst.Element{src.Element}

	for _, st := range spec.Stages {
		elem, err := gst.NewElement(st.Factory)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("gstgraph: failed to create stage %q (%s): %w", st.Name, st.Factory, err)
		}
		if st.Name != "" {
			elem.SetProperty("name", st.Name)
		}
		for prop, value := range st.Properties {
			if caps, ok := value.(mediagraph.Caps); ok {
				value = gst.NewCapsFromString(string(caps))
			}
			if err := elem.SetProperty(prop, value); err != nil {
				g.Close()
				return nil, fmt.Errorf("gstgraph: failed to set %s.%s: %w", st.Name, prop, err)
			}
		}
		elements = append(elements, elem)
	}

	sink, err := app.NewAppSink()
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("gstgraph: failed to create sample sink: %w", err)
	}
	if spec.Sink.Caps != "" {
		sink.SetCaps(gst.NewCapsFromString(string(spec.Sink.Caps)))
	}
	maxBuffers := spec.Sink.MaxBuffers
	if maxBuffers == 0 {
		maxBuffers = 12
	}
	// Pull-only sink that sheds load deterministically: never synchronize to
	// a clock, never emit push-style callbacks, drop oldest beyond the bound.
	sink.SetProperty("sync", false)
	sink.SetProperty("emit-signals", false)
	sink.SetProperty("max-buffers", maxBuffers)
	sink.SetProperty("drop", true)
	g.sink = &appSink{sink: sink}
	elements = append(elements, sink.Element)

	if err := pipeline.AddMany(elements...); err != nil {
		g.Close()
		return nil, fmt.Errorf("gstgraph: failed to add stages: %w", err)
	}
	if err := gst.ElementLinkMany(elements...); err != nil {
		g.Close()
		return nil, fmt.Errorf("gstgraph: failed to link stages: %w", err)
	}

	g.bus = &messageBus{bus: pipeline.GetPipelineBus()}
	return g, nil
}

type graph struct {
	pipeline *gst.Pipeline
	input    *appInput
	sink     *appSink
	bus      *messageBus
}

func (g *graph) Input() mediagraph.Input { return g.input }
func (g *graph) Sink() mediagraph.Sink   { return g.sink }
func (g *graph) Bus() mediagraph.Bus     { return g.bus }

func (g *graph) Play(asyncWait time.Duration) error {
	ret := g.pipeline.SetState(gst.StatePlaying)
	if ret != nil {
		return fmt.Errorf("gstgraph: failed to set pipeline to PLAYING: %w", ret)
	}
	state := g.pipeline.GetCurrentState()
	if state == gst.StatePlaying {
		return nil
	}
	// Async transition: bounded wait for completion.
	deadline := time.Now().Add(asyncWait)
	for time.Now().Before(deadline) {
		if g.pipeline.GetCurrentState() == gst.StatePlaying {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if g.pipeline.GetCurrentState() != gst.StatePlaying {
		return fmt.Errorf("gstgraph: pipeline did not reach PLAYING within %v", asyncWait)
	}
	return nil
}

func (g *graph) SendEOS() {
	if g.input != nil {
		g.input.src.EndStream()
	}
}

func (g *graph) Shutdown() {
	if err := g.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gstgraph: failed to set pipeline to NULL", "error", err)
	}
}

func (g *graph) Close() {
	g.Shutdown()
	g.pipeline = nil
}

// appInput adapts an appsrc to mediagraph.Input.
type appInput struct {
	src *app.Source
}

func (a *appInput) QueuedBytes() uint64 {
	return a.src.GetCurrentLevelBytes()
}

// Push copies data into a fresh graph buffer and delivers it. Never blocks:
// the input stage is configured non-blocking and the caller has already shed
// load against QueuedBytes.
func (a *appInput) Push(data []byte) error {
	buf := gst.NewBufferFromBytes(data)
	if buf == nil {
		return fmt.Errorf("gstgraph: buffer allocation failed (%d bytes)", len(data))
	}
	if ret := a.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("gstgraph: input push returned %s", ret)
	}
	return nil
}

// appSink adapts an appsink to mediagraph.Sink.
type appSink struct {
	sink *app.Sink
}

func (a *appSink) TryPull(timeout time.Duration) (mediagraph.Sample, bool) {
	sample := a.sink.TryPullSample(gst.ClockTime(timeout.Nanoseconds()))
	if sample == nil {
		return nil, false
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, false
	}
	return &gstSample{sample: sample, buffer: buffer}, true
}

// gstSample maps the buffer lazily and keeps it mapped until Release.
type gstSample struct {
	sample *gst.Sample
	buffer *gst.Buffer
	mapped bool
	data   []byte
}

func (s *gstSample) Data() []byte {
	if !s.mapped {
		s.data = s.buffer.Map(gst.MapRead).Bytes()
		s.mapped = true
	}
	return s.data
}

func (s *gstSample) PTS() (time.Duration, bool) {
	pts := s.buffer.PresentationTimestamp()
	if pts == gst.ClockTimeNone {
		return 0, false
	}
	return time.Duration(pts), true
}

func (s *gstSample) DTS() (time.Duration, bool) {
	dts := s.buffer.DecodingTimestamp()
	if dts == gst.ClockTimeNone {
		return 0, false
	}
	return time.Duration(dts), true
}

func (s *gstSample) Release() {
	if s.mapped {
		s.buffer.Unmap()
		s.mapped = false
	}
	s.data = nil
}

// messageBus adapts the pipeline bus to mediagraph.Bus. Only error and EOS
// messages are surfaced; everything else is treated as a timeout so the
// caller's bounded-poll loop keeps its shape.
type messageBus struct {
	bus *gst.Bus
}

func (m *messageBus) TimedPop(timeout time.Duration) (mediagraph.Event, bool) {
	msg := m.bus.TimedPop(timeout)
	if msg == nil {
		return mediagraph.Event{}, false
	}

	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		return mediagraph.Event{
			Kind:  mediagraph.EventError,
			Err:   fmt.Errorf("gstgraph: pipeline error: %s", gerr.Error()),
			Debug: gerr.DebugString(),
		}, true
	case gst.MessageEOS:
		return mediagraph.Event{Kind: mediagraph.EventEOS}, true
	default:
		return mediagraph.Event{}, false
	}
}
