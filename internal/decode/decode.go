// Package decode defines the contract between the pipeline controller and
// the hardware video decoder. The decoder is an external collaborator: the
// controller only drives its lifecycle and feeds it parsed access units.
package decode

import (
	"errors"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/display"
)

// ErrBusy reports a transient feed rejection. The caller logs it and keeps
// going; the decoder will accept subsequent samples.
var ErrBusy = errors.New("decode: decoder busy")

// Decoder is a hardware video decoder driven by the pipeline controller.
//
// Lifecycle: Init → Start → Feed*/SendEOS → Stop → Deinit → Close.
// Feed is only called between Start and Stop, from a single goroutine.
type Decoder interface {
	// Init binds the decoder to a display target. The file descriptor is the
	// opened display device.
	Init(cfg *config.Config, target display.Target, fd int) error
	// Start begins decoding.
	Start() error
	// Feed hands one access unit with its timestamp to the decoder.
	// Returns ErrBusy when the decoder input queue is momentarily full.
	Feed(data []byte, pts time.Duration) error
	// SendEOS signals that no further samples will arrive.
	SendEOS()
	// Stop halts decoding. Idempotent.
	Stop()
	// Deinit releases the display binding. Idempotent.
	Deinit()
	// Close releases the decoder itself.
	Close()
	// MaxPacketSize reports the largest access unit Feed accepts.
	MaxPacketSize() int
}

// Factory creates a decoder instance per pipeline start.
type Factory func() (Decoder, error)
