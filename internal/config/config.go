// Package config holds the immutable configuration snapshot consumed by the
// receiver core. Values are resolved in three layers: built-in defaults, an
// optional INI-style configuration file, and command-line flags, with the
// command line taking precedence.
package config

import (
	"fmt"
	"strings"
)

// RecordMode selects how the MP4 recorder lays out its output.
type RecordMode int

const (
	// RecordModeStandard writes a single conventional MP4 file.
	RecordModeStandard RecordMode = iota
	// RecordModeSequential appends numbered files into a directory.
	RecordModeSequential
	// RecordModeFragmented writes a fragmented MP4 (recoverable after crash).
	RecordModeFragmented
)

// String returns the canonical name of the record mode.
func (m RecordMode) String() string {
	switch m {
	case RecordModeStandard:
		return "standard"
	case RecordModeSequential:
		return "sequential"
	case RecordModeFragmented:
		return "fragmented"
	default:
		return "unknown"
	}
}

// ParseRecordMode resolves a record-mode name (or alias) to its mode value.
func ParseRecordMode(value string) (RecordMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "standard", "default":
		return RecordModeStandard, nil
	case "sequential", "append":
		return RecordModeSequential, nil
	case "fragmented", "fragment":
		return RecordModeFragmented, nil
	default:
		return 0, fmt.Errorf("config: unknown record mode: %q", value)
	}
}

// RecordConfig describes the recording attachment.
type RecordConfig struct {
	Enable     bool
	OutputPath string
	Mode       RecordMode
}

// Config is the application configuration. It is treated as read-only by
// every component except the supervisor, which owns its lifetime.
type Config struct {
	// CardPath is the DRM device used for display output.
	CardPath string
	// ConnectorName selects the display connector (empty = auto).
	ConnectorName string
	// ConfigPath is the INI file the configuration was loaded from, if any.
	ConfigPath string
	// PlaneID is the DRM plane the decoded video is bound to.
	PlaneID int

	// UDPPort is the RTP listen port.
	UDPPort int
	// VideoPayloadType is the expected RTP payload type, or -1 for any.
	VideoPayloadType int
	// JitterBufferMS is the jitter-absorbing stage latency in milliseconds.
	JitterBufferMS int
	// SinkMaxBuffers bounds the decoded-sample sink queue (0 = pipeline default).
	SinkMaxBuffers int
	// GstLog exports GST_DEBUG=3 when the environment does not set it.
	GstLog bool
	// Verbose enables debug-level logging.
	Verbose bool

	Record RecordConfig
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		CardPath:         "/dev/dri/card0",
		ConnectorName:    "",
		PlaneID:          76,
		UDPPort:          5600,
		VideoPayloadType: 97,
		JitterBufferMS:   10,
		SinkMaxBuffers:   4,
		Record: RecordConfig{
			Enable:     false,
			OutputPath: "/media",
			Mode:       RecordModeSequential,
		},
	}
}
