// Package mediagraph defines the capability contract between the receiver
// core and the media processing graph. The core never depends on concrete
// stage types: the stage catalog (jitter buffer, depacketizer, parser, ...)
// is plain configuration data handed to a Builder, and the running graph is
// observed through bounded-wait pulls only.
package mediagraph

import "time"

// Caps is an opaque media-format description string understood by the
// graph backend (e.g. "video/x-h265, stream-format=byte-stream").
type Caps string

// StageSpec names one processing stage and its property configuration.
type StageSpec struct {
	// Factory is the backend stage type, e.g. "rtpjitterbuffer".
	Factory string
	// Name identifies the stage instance in logs and errors.
	Name string
	// Properties is applied to the stage before linking. Values of type
	// Caps are converted to the backend's format representation.
	Properties map[string]any
}

// InputSpec configures the graph's front-end input stage.
type InputSpec struct {
	Name string
	Caps Caps
	// Live marks the input as a live source with timestamping at arrival.
	Live bool
	// MaxQueuedBytes is the input stage's own queue bound (0 = unlimited;
	// downstream stages apply their own limits).
	MaxQueuedBytes uint64
}

// SinkSpec configures the terminal decoded-sample sink.
type SinkSpec struct {
	Name string
	Caps Caps
	// MaxBuffers bounds the sink queue; oldest buffers are dropped beyond it.
	MaxBuffers uint
}

// Spec is the complete description of a processing graph: one input stage,
// an ordered chain of intermediate stages, and one sample sink, linked
// front to back.
type Spec struct {
	Name   string
	Input  InputSpec
	Stages []StageSpec
	Sink   SinkSpec
}

// Builder constructs a graph from a Spec. Construction either yields a fully
// linked graph or fails with no residual state.
type Builder interface {
	Build(spec Spec) (Graph, error)
}

// Graph is a built processing graph.
type Graph interface {
	// Input returns the front-end input stage.
	Input() Input
	// Sink returns the decoded-sample sink.
	Sink() Sink
	// Bus returns the graph's event bus.
	Bus() Bus

	// Play transitions the graph to its active state. When the transition
	// completes asynchronously, Play waits up to asyncWait for completion
	// and reports an error if that wait fails.
	Play(asyncWait time.Duration) error
	// SendEOS injects an end-of-stream event at the input.
	SendEOS()
	// Shutdown forces the graph to its idle state. Idempotent.
	Shutdown()
	// Close releases all graph resources. The graph is unusable afterwards.
	Close()
}

// Input is the graph's front-end stage, fed by the packet ingest worker.
//
// Push hands one datagram payload to the graph. Ownership of the delivered
// bytes transfers to the graph regardless of the outcome ("leak upstream"):
// implementations copy the slice and never block, and the caller is free to
// reuse its buffer once Push returns. Delivery failures are reported for
// logging only and must not be retried.
type Input interface {
	// QueuedBytes reports the input stage's current queue level.
	QueuedBytes() uint64
	Push(data []byte) error
}

// Sink is the terminal stage the core pulls parsed samples from.
type Sink interface {
	// TryPull waits up to timeout for the next sample. The second return
	// value is false when the wait timed out or the sink is shutting down.
	TryPull(timeout time.Duration) (Sample, bool)
}

// Sample is one parsed elementary-stream unit.
type Sample interface {
	// Data returns the sample payload, mapped read-only. The slice is only
	// valid until Release is called.
	Data() []byte
	// PTS returns the presentation timestamp, when known.
	PTS() (time.Duration, bool)
	// DTS returns the decode timestamp, when known.
	DTS() (time.Duration, bool)
	// Release returns the sample to the graph.
	Release()
}

// EventKind classifies bus events observed by the core.
type EventKind int

const (
	// EventError reports a fatal graph error.
	EventError EventKind = iota
	// EventEOS reports end of stream.
	EventEOS
)

// Event is a typed graph event.
type Event struct {
	Kind EventKind
	// Err carries the error for EventError.
	Err error
	// Debug carries backend-specific diagnostic detail, possibly empty.
	Debug string
}

// Bus yields graph events via bounded-wait pulls.
type Bus interface {
	// TimedPop waits up to timeout for the next event. The second return
	// value is false when the wait timed out.
	TimedPop(timeout time.Duration) (Event, bool)
}
