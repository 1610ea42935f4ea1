package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/skylink-receiver/internal/config"
	"github.com/e7canasta/skylink-receiver/internal/record"
)

// EnableRecording attaches a recorder built from the given configuration.
// Idempotent: when a recorder is already attached the new candidate is
// discarded and nil is returned. The candidate is built before taking the
// recorder lock so file and pipeline setup never stall the sample path.
func (p *Pipeline) EnableRecording(rc config.RecordConfig) error {
	if rc.OutputPath == "" {
		return fmt.Errorf("pipeline: recording requires an output path")
	}
	rc.Enable = true

	candidate, err := p.newRecorder(rc)
	if err != nil {
		return fmt.Errorf("pipeline: recorder setup failed: %w", err)
	}

	p.recMu.Lock()
	if p.recorder != nil {
		p.recMu.Unlock()
		slog.Debug("pipeline: recording already enabled")
		if err := candidate.Close(); err != nil {
			slog.Warn("pipeline: discarding candidate recorder failed", "error", err)
		}
		return nil
	}
	p.recorder = candidate
	p.recMu.Unlock()

	slog.Info("pipeline: recording enabled",
		"path", rc.OutputPath,
		"mode", rc.Mode.String(),
	)
	return nil
}

// DisableRecording detaches and finalizes the recorder. A pipeline with no
// recorder attached is left untouched.
func (p *Pipeline) DisableRecording() {
	p.recMu.Lock()
	rec := p.recorder
	p.recorder = nil
	p.recMu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Close(); err != nil {
		slog.Warn("pipeline: recorder close failed", "error", err)
	}
	slog.Info("pipeline: recording disabled")
}

// RecordingStats returns the attached recorder's statistics, or an inactive
// zero snapshot when no recorder is attached.
func (p *Pipeline) RecordingStats() record.Stats {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.recorder == nil {
		return record.Stats{}
	}
	return p.recorder.Stats()
}
