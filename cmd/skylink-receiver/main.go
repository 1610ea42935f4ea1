// Command skylink-receiver receives a live H.265 video stream over RTP/UDP,
// decodes it in hardware, and presents it on a DRM/KMS plane, with optional
// MP4 recording. It is designed to run as the single video process on an
// embedded ground-station display.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/decode/gstdec"
	"github.com/e7canasta/skylink-receiver/internal/display"
	"github.com/e7canasta/skylink-receiver/internal/mediagraph/gstgraph"
	"github.com/e7canasta/skylink-receiver/internal/pipeline"
	"github.com/e7canasta/skylink-receiver/internal/record/gstrec"
	"github.com/e7canasta/skylink-receiver/internal/supervisor"
)

// Version information
const version = "v0.1.0"

// Exit codes: 0 clean shutdown, 1 runtime failure, 2 usage error. A shutdown
// that exceeds its deadline exits 128 from inside the supervisor.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	prog := filepath.Base(os.Args[0])

	cfg, err := config.ParseCLI(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		config.Usage(os.Stdout, prog)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n\n", prog, err)
		config.Usage(os.Stderr, prog)
		return exitUsage
	}

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("skylink-receiver starting",
		"version", version,
		"udp_port", cfg.UDPPort,
		"card", cfg.CardPath,
	)

	release, err := supervisor.AcquirePIDFile(supervisor.DefaultPIDFile)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return exitFailure
	}
	defer release()

	flags := supervisor.NewFlags()
	watcher := supervisor.WatchSignals(flags)
	defer watcher.Stop()

	fd, err := unix.Open(cfg.CardPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		slog.Error("failed to open display device", "card", cfg.CardPath, "error", err)
		return exitFailure
	}
	defer unix.Close(fd)

	target, err := display.Resolve(fd, cfg)
	if err != nil {
		slog.Error("failed to resolve display target", "error", err)
		return exitFailure
	}

	pipe := pipeline.New(gstgraph.NewBuilder(), gstdec.New, gstrec.New)
	if err := pipe.Start(cfg, target, fd); err != nil {
		slog.Error("failed to start pipeline", "error", err)
		return exitFailure
	}

	if cfg.Record.Enable {
		if err := pipe.EnableRecording(cfg.Record); err != nil {
			slog.Error("failed to enable recording", "error", err)
		}
	}

	sup := supervisor.New(flags, pipe, cfg, target, fd)
	runErr := sup.Run()
	sup.Shutdown()

	if runErr != nil {
		slog.Error("receiver terminated", "error", runErr)
		return exitFailure
	}
	slog.Info("skylink-receiver stopped")
	return exitOK
}
