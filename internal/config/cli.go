package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrHelp is returned by ParseCLI when --help was requested. The caller is
// expected to exit cleanly (exit code 0).
var ErrHelp = errors.New("config: help requested")

// Usage writes the command-line help text.
func Usage(w io.Writer, prog string) {
	fmt.Fprintf(w,
		"Usage: %s [options]\n"+
			"  --card PATH             DRM card path (default: /dev/dri/card0)\n"+
			"  --connector NAME        Connector name, e.g. HDMI-A-1 (default: auto)\n"+
			"  --plane-id N            Video plane ID (default: 76)\n"+
			"  --config PATH           Load configuration from ini file\n"+
			"  --udp-port N            UDP listen port (default: 5600)\n"+
			"  --vid-pt N              RTP payload type for video (default: 97)\n"+
			"  --sink-max-buffers N    Max buffers queued on the sample sink (default: 4)\n"+
			"  --record-video [PATH]   Enable MP4 recording (optional output path)\n"+
			"  --record-mode MODE      MP4 recording mode (standard|sequential|fragmented)\n"+
			"  --no-record-video       Disable MP4 recording\n"+
			"  --gst-log               Export GST_DEBUG=3 when not already set\n"+
			"  --verbose               Enable verbose logging\n"+
			"  --help                  Show this help text\n",
		prog)
}

func parseIntArg(opt, value string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %q", opt, value)
	}
	return v, nil
}

// ParseCLI resolves the configuration from the given argument list (without
// the program name). A --config file, when present, is loaded first so that
// the remaining flags override its values.
func ParseCLI(args []string) (*Config, error) {
	cfg := Defaults()

	// First pass: help and config-file load. The file must be applied before
	// any other flag so the command line keeps precedence.
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			return nil, ErrHelp
		case "--config":
			if i+1 >= len(args) {
				return nil, errors.New("config: --config requires a path")
			}
			i++
			cfg.ConfigPath = args[i]
			if err := LoadFile(cfg.ConfigPath, cfg); err != nil {
				return nil, err
			}
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		takeValue := func(opt string) (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("config: %s requires a value", opt)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "--config":
			i++ // already applied in the first pass

		case "--card":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			cfg.CardPath = v

		case "--connector":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			cfg.ConnectorName = v

		case "--plane-id":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			if cfg.PlaneID, err = parseIntArg(arg, v); err != nil {
				return nil, err
			}

		case "--udp-port":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			if cfg.UDPPort, err = parseIntArg(arg, v); err != nil {
				return nil, err
			}

		case "--vid-pt":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			if cfg.VideoPayloadType, err = parseIntArg(arg, v); err != nil {
				return nil, err
			}

		case "--sink-max-buffers":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			if cfg.SinkMaxBuffers, err = parseIntArg(arg, v); err != nil {
				return nil, err
			}

		case "--record-video":
			cfg.Record.Enable = true
			// The output path is optional; a following flag means it was omitted.
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i++
				cfg.Record.OutputPath = args[i]
			}

		case "--record-mode":
			v, err := takeValue(arg)
			if err != nil {
				return nil, err
			}
			mode, err := ParseRecordMode(v)
			if err != nil {
				return nil, err
			}
			cfg.Record.Mode = mode

		case "--no-record-video":
			cfg.Record.Enable = false

		case "--gst-log":
			cfg.GstLog = true

		case "--verbose":
			cfg.Verbose = true

		default:
			return nil, fmt.Errorf("config: unknown option: %s", arg)
		}
	}

	maybeEnableGstLog(cfg)
	return cfg, nil
}

func maybeEnableGstLog(cfg *Config) {
	if cfg.GstLog && os.Getenv("GST_DEBUG") == "" {
		os.Setenv("GST_DEBUG", "3")
	}
}
