// Package gstrec implements the record.Recorder contract with a small
// GStreamer muxing pipeline (appsrc → h265parse → mp4mux → filesink).
package gstrec

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

const closeTimeout = 2 * time.Second

// New builds and starts an MP4 recorder writing to the resolved output path.
// Satisfies record.Factory.
func New(cfg config.RecordConfig) (record.Recorder, error) {
	gst.Init(nil)

	path, err := record.ResolveOutputPath(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := gst.NewPipeline("skylink_recorder")
	if err != nil {
		return nil, fmt.Errorf("gstrec: failed to create pipeline: %w", err)
	}

	r := &recorder{pipeline: pipeline, path: path, started: time.Now()}

	src, err := app.NewAppSrc()
	if err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(
		"video/x-h265, stream-format=byte-stream, alignment=au"))
	src.SetProperty("is-live", true)
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("block", false)
	r.src = src

	parser, err := gst.NewElement("h265parse")
	if err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to create h265parse: %w", err)
	}
	parser.SetProperty("config-interval", -1)

	mux, err := gst.NewElement("mp4mux")
	if err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to create mp4mux: %w", err)
	}
	if cfg.Mode == config.RecordModeFragmented {
		// Fragmented output stays playable after a crash or power loss.
		mux.SetProperty("fragment-duration", uint(1000))
	}

	filesink, err := gst.NewElement("filesink")
	if err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to create filesink: %w", err)
	}
	filesink.SetProperty("location", path)

	if err := pipeline.AddMany(src.Element, parser, mux, filesink); err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, parser, mux, filesink); err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to link elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		r.teardown()
		return nil, fmt.Errorf("gstrec: failed to start recorder: %w", err)
	}

	slog.Info("gstrec: recording started", "path", path, "mode", cfg.Mode.String())
	return r, nil
}

type recorder struct {
	pipeline *gst.Pipeline
	src      *app.Source
	path     string
	started  time.Time

	bytesWritten atomic.Uint64

	mu       sync.Mutex
	keyframe bool
	firstPTS time.Duration
	lastPTS  time.Duration
	havePTS  bool
	closed   bool
}

// HandleSample feeds one access unit into the muxing pipeline. Output is
// gated until the first random-access unit so the file starts decodable.
func (r *recorder) HandleSample(data []byte, pts time.Duration) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if !r.keyframe {
		if !record.IsRandomAccess(data) {
			r.mu.Unlock()
			return
		}
		r.keyframe = true
	}
	if !r.havePTS {
		r.firstPTS = pts
		r.havePTS = true
	}
	if pts > r.lastPTS {
		r.lastPTS = pts
	}
	r.mu.Unlock()

	buf := gst.NewBufferFromBytes(data)
	if buf == nil {
		slog.Warn("gstrec: buffer allocation failed, sample skipped")
		return
	}
	buf.SetPresentationTimestamp(gst.ClockTime(pts))

	if ret := r.src.PushBuffer(buf); ret != gst.FlowOK {
		slog.Debug("gstrec: push returned", "flow", ret)
		return
	}
	r.bytesWritten.Add(uint64(len(data)))
}

func (r *recorder) Stats() record.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var mediaDuration time.Duration
	if r.havePTS && r.lastPTS > r.firstPTS {
		mediaDuration = r.lastPTS - r.firstPTS
	}
	return record.Stats{
		Active:        !r.closed,
		BytesWritten:  r.bytesWritten.Load(),
		Elapsed:       time.Since(r.started),
		MediaDuration: mediaDuration,
		OutputPath:    r.path,
	}
}

// Close finalizes the file: end-of-stream into the muxer, bounded wait for
// the EOS to reach the sink, then release the pipeline.
func (r *recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.src.EndStream()

	bus := r.pipeline.GetPipelineBus()
	deadline := time.Now().Add(closeTimeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		if msg.Type() == gst.MessageEOS || msg.Type() == gst.MessageError {
			break
		}
	}

	r.teardown()
	slog.Info("gstrec: recording finished",
		"path", r.path,
		"bytes_written", r.bytesWritten.Load(),
	)
	return nil
}

func (r *recorder) teardown() {
	if r.pipeline != nil {
		if err := r.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("gstrec: failed to set recorder pipeline to NULL", "error", err)
		}
		r.pipeline = nil
	}
}
