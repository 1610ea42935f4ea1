package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCLIDefaults(t *testing.T) {
	cfg, err := ParseCLI(nil)
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestParseCLIFlags(t *testing.T) {
	cfg, err := ParseCLI([]string{
		"--card", "/dev/dri/card1",
		"--connector", "HDMI-A-1",
		"--plane-id", "42",
		"--udp-port", "6000",
		"--vid-pt", "96",
		"--sink-max-buffers", "8",
		"--verbose",
	})
	require.NoError(t, err)
	require.Equal(t, "/dev/dri/card1", cfg.CardPath)
	require.Equal(t, "HDMI-A-1", cfg.ConnectorName)
	require.Equal(t, 42, cfg.PlaneID)
	require.Equal(t, 6000, cfg.UDPPort)
	require.Equal(t, 96, cfg.VideoPayloadType)
	require.Equal(t, 8, cfg.SinkMaxBuffers)
	require.True(t, cfg.Verbose)
}

func TestParseCLIRecordFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		enable bool
		path   string
		mode   RecordMode
	}{
		{
			name:   "record with path",
			args:   []string{"--record-video", "/media/flight1"},
			enable: true,
			path:   "/media/flight1",
			mode:   RecordModeSequential,
		},
		{
			name:   "record without path keeps default",
			args:   []string{"--record-video"},
			enable: true,
			path:   "/media",
			mode:   RecordModeSequential,
		},
		{
			name:   "record path omitted before next flag",
			args:   []string{"--record-video", "--verbose"},
			enable: true,
			path:   "/media",
			mode:   RecordModeSequential,
		},
		{
			name:   "record mode fragment alias",
			args:   []string{"--record-video", "--record-mode", "fragment"},
			enable: true,
			path:   "/media",
			mode:   RecordModeFragmented,
		},
		{
			name:   "no-record overrides",
			args:   []string{"--record-video", "/media", "--no-record-video"},
			enable: false,
			path:   "/media",
			mode:   RecordModeSequential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseCLI(tt.args)
			require.NoError(t, err)
			require.Equal(t, tt.enable, cfg.Record.Enable)
			require.Equal(t, tt.path, cfg.Record.OutputPath)
			require.Equal(t, tt.mode, cfg.Record.Mode)
		})
	}
}

func TestParseCLIHelp(t *testing.T) {
	_, err := ParseCLI([]string{"--help"})
	require.ErrorIs(t, err, ErrHelp)

	_, err = ParseCLI([]string{"-h"})
	require.ErrorIs(t, err, ErrHelp)
}

func TestParseCLIErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown option", []string{"--frobnicate"}},
		{"missing value", []string{"--udp-port"}},
		{"bad integer", []string{"--udp-port", "video"}},
		{"bad record mode", []string{"--record-mode", "circular"}},
		{"missing config path", []string{"--config"}},
		{"nonexistent config file", []string{"--config", "/nonexistent/receiver.ini"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCLI(tt.args)
			require.Error(t, err)
		})
	}
}

func TestParseCLIConfigFileThenFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receiver.ini")
	require.NoError(t, os.WriteFile(path, []byte("udp_port=7000\nvid_pt=96\n"), 0o644))

	// The file applies first regardless of flag position on the command line.
	cfg, err := ParseCLI([]string{"--udp-port", "8000", "--config", path})
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.UDPPort, "command line overrides the file")
	require.Equal(t, 96, cfg.VideoPayloadType, "file overrides the default")
	require.Equal(t, path, cfg.ConfigPath)
}

func TestParseRecordModeAliases(t *testing.T) {
	tests := []struct {
		in   string
		want RecordMode
	}{
		{"standard", RecordModeStandard},
		{"default", RecordModeStandard},
		{"sequential", RecordModeSequential},
		{"append", RecordModeSequential},
		{"fragmented", RecordModeFragmented},
		{"fragment", RecordModeFragmented},
		{" Fragmented ", RecordModeFragmented},
	}
	for _, tt := range tests {
		mode, err := ParseRecordMode(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, mode, tt.in)
	}

	_, err := ParseRecordMode("ring")
	require.Error(t, err)
}

func TestRecordModeString(t *testing.T) {
	require.Equal(t, "standard", RecordModeStandard.String())
	require.Equal(t, "sequential", RecordModeSequential.String())
	require.Equal(t, "fragmented", RecordModeFragmented.String())
}
