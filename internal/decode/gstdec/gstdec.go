// Package gstdec adapts a GStreamer decode-and-display chain to the
// decode.Decoder contract. It prefers the stateless V4L2 hardware decoder
// and falls back to software decode, presenting on a KMS plane.
package gstdec

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/decode"
	"github.com/e7canasta/skylink-receiver/internal/display"
)

const (
	// maxPacketSize is the largest access unit the decoder accepts; 1080p
	// H.265 IDR frames stay well below this.
	maxPacketSize = 1024 * 1024
	// feedLevelCeiling marks the decoder input queue level treated as busy.
	feedLevelCeiling = 4 * 1024 * 1024
)

// New returns an uninitialized decoder. Satisfies decode.Factory.
func New() (decode.Decoder, error) {
	return &decoder{}, nil
}

type decoder struct {
	pipeline    *gst.Pipeline
	src         *app.Source
	initialized bool
	running     bool
	hardware    bool
}

// Init builds the decode chain against the display target. The fd is the
// opened DRM device; kmssink performs the modeset against the same card.
func (d *decoder) Init(cfg *config.Config, target display.Target, fd int) error {
	if d.initialized {
		return nil
	}
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("skylink_decoder")
	if err != nil {
		return fmt.Errorf("gstdec: failed to create pipeline: %w", err)
	}
	d.pipeline = pipeline

	src, err := app.NewAppSrc()
	if err != nil {
		d.teardown()
		return fmt.Errorf("gstdec: failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(
		"video/x-h265, stream-format=byte-stream, alignment=au"))
	src.SetProperty("is-live", true)
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("block", false)
	d.src = src

	// Prefer the stateless V4L2 hardware decoder; fall back to software.
	dec, err := gst.NewElement("v4l2slh265dec")
	if err != nil {
		slog.Warn("gstdec: hardware H.265 decoder unavailable, using software decode", "error", err)
		dec, err = gst.NewElement("avdec_h265")
		if err != nil {
			d.teardown()
			return fmt.Errorf("gstdec: no H.265 decoder available: %w", err)
		}
		dec.SetProperty("max-threads", 0)
	} else {
		d.hardware = true
	}

	sink, err := gst.NewElement("kmssink")
	if err != nil {
		d.teardown()
		return fmt.Errorf("gstdec: failed to create kmssink: %w", err)
	}
	sink.SetProperty("sync", false)
	if target.PlaneID > 0 {
		sink.SetProperty("plane-id", target.PlaneID)
	}
	if target.Connector != "" {
		sink.SetProperty("force-modesetting", true)
	}

	if err := pipeline.AddMany(src.Element, dec, sink); err != nil {
		d.teardown()
		return fmt.Errorf("gstdec: failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, dec, sink); err != nil {
		d.teardown()
		return fmt.Errorf("gstdec: failed to link elements: %w", err)
	}

	d.initialized = true
	slog.Info("gstdec: decoder initialized",
		"hardware", d.hardware,
		"plane_id", target.PlaneID,
		"mode", fmt.Sprintf("%dx%d", target.Width, target.Height),
	)
	return nil
}

func (d *decoder) Start() error {
	if !d.initialized {
		return fmt.Errorf("gstdec: decoder not initialized")
	}
	if d.running {
		return nil
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstdec: failed to start decoder: %w", err)
	}
	d.running = true
	return nil
}

// Feed pushes one access unit. A full input queue is reported as ErrBusy;
// the sample is dropped, the stream recovers at the next random-access unit.
func (d *decoder) Feed(data []byte, pts time.Duration) error {
	if !d.running {
		return fmt.Errorf("gstdec: decoder not running")
	}
	if d.src.GetCurrentLevelBytes() > feedLevelCeiling {
		return decode.ErrBusy
	}
	buf := gst.NewBufferFromBytes(data)
	if buf == nil {
		return fmt.Errorf("gstdec: buffer allocation failed (%d bytes)", len(data))
	}
	buf.SetPresentationTimestamp(gst.ClockTime(pts))
	if ret := d.src.PushBuffer(buf); ret != gst.FlowOK {
		return decode.ErrBusy
	}
	return nil
}

func (d *decoder) SendEOS() {
	if d.src != nil {
		d.src.EndStream()
	}
}

func (d *decoder) Stop() {
	if !d.running {
		return
	}
	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gstdec: failed to stop decoder pipeline", "error", err)
	}
	d.running = false
}

func (d *decoder) Deinit() {
	if !d.initialized {
		return
	}
	d.Stop()
	d.initialized = false
}

func (d *decoder) Close() {
	d.Deinit()
	d.teardown()
}

func (d *decoder) MaxPacketSize() int { return maxPacketSize }

func (d *decoder) teardown() {
	if d.pipeline != nil {
		if err := d.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("gstdec: failed to set decoder pipeline to NULL", "error", err)
		}
		d.pipeline = nil
	}
	d.src = nil
}
