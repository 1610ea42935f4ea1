package pipeline

import (
	"fmt"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/mediagraph"
)

const elementaryStreamCaps = mediagraph.Caps(
	"video/x-h265, stream-format=byte-stream, alignment=au")

// GraphSpec describes the receive graph as data: live RTP input, a
// drop-oldest front queue, a small jitter buffer, H.265 depacketization and
// parsing, byte-stream/AU caps enforcement, and the pull-only sample sink.
// The stage catalog lives here so the topology is testable without a
// graph backend.
func GraphSpec(cfg *config.Config) mediagraph.Spec {
	rtpCaps := "application/x-rtp, media=video, encoding-name=H265, clock-rate=90000"
	if cfg.VideoPayloadType >= 0 {
		rtpCaps = fmt.Sprintf(
			"application/x-rtp, media=video, encoding-name=H265, payload=%d, clock-rate=90000",
			cfg.VideoPayloadType)
	}

	jitterMS := cfg.JitterBufferMS
	if jitterMS <= 0 {
		jitterMS = 10
	}
	maxBuffers := cfg.SinkMaxBuffers
	if maxBuffers <= 0 {
		maxBuffers = 12
	}

	return mediagraph.Spec{
		Name: "skylink_receiver",
		Input: mediagraph.InputSpec{
			Name: "ingest_src",
			Caps: mediagraph.Caps(rtpCaps),
			Live: true,
			// Unlimited at the front end; the ingest worker sheds load
			// against the queue level, the queue below leaks the oldest.
			MaxQueuedBytes: 0,
		},
		Stages: []mediagraph.StageSpec{
			{
				Factory: "queue",
				Name:    "ingest_queue",
				Properties: map[string]any{
					"leaky":            2, // drop oldest under pressure
					"max-size-time":    uint64(0),
					"max-size-bytes":   uint(0),
					"max-size-buffers": uint(0),
				},
			},
			{
				Factory: "rtpjitterbuffer",
				Name:    "jitter",
				Properties: map[string]any{
					"latency":      uint(jitterMS),
					"do-lost":      true,
					"drop-on-late": false,
					"mode":         2, // synced
				},
			},
			{
				Factory: "rtph265depay",
				Name:    "video_depay",
			},
			{
				Factory: "h265parse",
				Name:    "video_parser",
				Properties: map[string]any{
					"config-interval":     -1, // repeat stream headers
					"disable-passthrough": true,
				},
			},
			{
				Factory: "capsfilter",
				Name:    "video_capsfilter",
				Properties: map[string]any{
					"caps": elementaryStreamCaps,
				},
			},
		},
		Sink: mediagraph.SinkSpec{
			Name:       "video_sink",
			Caps:       elementaryStreamCaps,
			MaxBuffers: uint(maxBuffers),
		},
	}
}
