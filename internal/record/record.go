// Package record defines the recording attachment contract: an optional,
// hot-swappable consumer of decoded-sample bytes, owned by the pipeline
// controller behind its own lock.
package record

import (
	"time"

	"github.com/e7canasta/skylink-receiver/internal/config"
)

// Stats is a snapshot of a recorder's live statistics.
type Stats struct {
	Active        bool
	BytesWritten  uint64
	Elapsed       time.Duration
	MediaDuration time.Duration
	OutputPath    string
}

// Recorder receives a copy of every decoded sample while attached.
//
// HandleSample is called from the decoded-sample consumer under the recorder
// lock; implementations must not block beyond a queue hand-off. Stats must be
// cheap enough to call from the same path.
type Recorder interface {
	HandleSample(data []byte, pts time.Duration)
	Stats() Stats
	Close() error
}

// Factory builds a recorder from a config snapshot. Called with Enable
// forced true and a non-empty output path.
type Factory func(cfg config.RecordConfig) (Recorder, error)
