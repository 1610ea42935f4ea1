package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/display"
	"github.com/e7canasta/skylink-receiver/internal/framestats"
	"github.com/e7canasta/skylink-receiver/internal/ingest"
	"github.com/e7canasta/skylink-receiver/internal/pipeline"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

const (
	// controlTick is the control-loop cadence: pending signal flags are
	// applied and the pipeline health is checked once per tick.
	controlTick = 200 * time.Millisecond
	// pipelineStopWait bounds the monitor-confirmation wait on each stop.
	pipelineStopWait = 700 * time.Millisecond
	// shutdownDeadline bounds the entire final stop. A pipeline that cannot
	// wind down within it gets the process force-exited.
	shutdownDeadline = 5 * time.Second
	// forcedExitCode is the status for a deadline-exceeded shutdown.
	forcedExitCode = 128
	// statsInterval is how often the control loop logs a health report.
	statsInterval = 10 * time.Second
)

// Controller is the pipeline surface the control loop drives.
type Controller interface {
	Start(cfg *config.Config, target display.Target, fd int) error
	Stop(wait time.Duration)
	PollChild()
	CurrentState() pipeline.State
	EnableRecording(config.RecordConfig) error
	DisableRecording()
	IngestStats() ingest.Stats
	FrameStats() framestats.Stats
	RecordingStats() record.Stats
}

// Supervisor runs the control loop: it applies signal flags to the pipeline
// and enforces the shutdown deadline.
type Supervisor struct {
	flags  *Flags
	ctl    Controller
	cfg    *config.Config
	target display.Target
	fd     int

	tick         time.Duration
	shutdownWait time.Duration
	// exit is the forced-exit hook, replaced in tests.
	exit func(code int)
}

// New creates a supervisor around a started pipeline.
func New(flags *Flags, ctl Controller, cfg *config.Config, target display.Target, fd int) *Supervisor {
	return &Supervisor{
		flags:        flags,
		ctl:          ctl,
		cfg:          cfg,
		target:       target,
		fd:           fd,
		tick:         controlTick,
		shutdownWait: shutdownDeadline,
		exit:         os.Exit,
	}
}

// Run executes the control loop until an exit is requested or the pipeline
// terminates on its own. A self-terminated pipeline is reported as an error;
// a signal-requested exit returns nil.
func (s *Supervisor) Run() error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	lastStats := time.Now()

	for !s.flags.ExitRequested() {
		<-ticker.C

		if time.Since(lastStats) >= statsInterval {
			lastStats = time.Now()
			s.logStats()
		}

		s.applyRecordToggles()

		if s.flags.TakeRestart() {
			if err := s.restart(); err != nil {
				return err
			}
			continue
		}

		s.ctl.PollChild()
		if s.ctl.CurrentState() == pipeline.Stopped {
			return fmt.Errorf("supervisor: pipeline terminated unexpectedly")
		}
	}
	return nil
}

// applyRecordToggles applies the coalesced record signals. A stop is applied
// before a start, so a stop/start pair observed in one tick rolls the
// recording over into a fresh file. The configuration's enable flag tracks
// the applied state; a later restart restores it.
func (s *Supervisor) applyRecordToggles() {
	starts, stops := s.flags.TakeRecordToggles()
	if starts == 0 && stops == 0 {
		return
	}
	if s.ctl.CurrentState() != pipeline.Running {
		slog.Warn("supervisor: record toggle ignored, pipeline not running")
		return
	}
	if stops > 0 {
		s.ctl.DisableRecording()
		s.cfg.Record.Enable = false
	}
	if starts > 0 {
		if err := s.ctl.EnableRecording(s.cfg.Record); err != nil {
			slog.Error("supervisor: failed to enable recording", "error", err)
		} else {
			s.cfg.Record.Enable = true
		}
	}
}

// logStats emits one periodic health line covering ingest, frame pacing, and
// recording.
func (s *Supervisor) logStats() {
	in := s.ctl.IngestStats()
	fr := s.ctl.FrameStats()
	rec := s.ctl.RecordingStats()

	attrs := []any{
		"packets_received", in.PacketsReceived,
		"packets_forwarded", in.PacketsForwarded,
		"packets_overflow", in.PacketsOverflow,
		"sequence_gaps", in.SequenceGaps,
		"fps", fmt.Sprintf("%.1f", fr.FPSMean),
		"fps_stddev", fmt.Sprintf("%.1f", fr.FPSStdDev),
		"steady", fr.Steady,
	}
	if rec.Active {
		attrs = append(attrs,
			"recording", rec.OutputPath,
			"recorded_bytes", rec.BytesWritten,
		)
	}
	slog.Info("supervisor: health", attrs...)
}

// restart performs the full stop/start cycle, re-enabling recording when the
// configuration asks for it.
func (s *Supervisor) restart() error {
	slog.Info("supervisor: restarting pipeline")

	s.ctl.Stop(pipelineStopWait)
	if err := s.ctl.Start(s.cfg, s.target, s.fd); err != nil {
		return fmt.Errorf("supervisor: pipeline restart failed: %w", err)
	}
	if s.cfg.Record.Enable {
		if err := s.ctl.EnableRecording(s.cfg.Record); err != nil {
			slog.Error("supervisor: failed to re-enable recording", "error", err)
		}
	}
	return nil
}

// Shutdown stops the pipeline under the shutdown deadline. A stop that does
// not complete in time forces the process to exit with status 128; resources
// are abandoned to the kernel rather than blocking termination forever.
func (s *Supervisor) Shutdown() {
	done := make(chan struct{})
	go func() {
		s.ctl.Stop(pipelineStopWait)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownWait):
		slog.Error("supervisor: shutdown deadline exceeded, forcing exit",
			"deadline", s.shutdownWait)
		s.exit(forcedExitCode)
	}
}
