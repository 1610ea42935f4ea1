package record

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/skylink-receiver/internal/config"
)

// ResolveOutputPath turns the configured destination into a concrete file
// path. A directory destination gets a generated file name; sequential mode
// allocates the next unused numbered name so repeated sessions line up on
// the storage medium.
func ResolveOutputPath(cfg config.RecordConfig) (string, error) {
	if cfg.OutputPath == "" {
		return "", fmt.Errorf("record: output path is empty")
	}

	info, err := os.Stat(cfg.OutputPath)
	isDir := err == nil && info.IsDir()
	if !isDir {
		return cfg.OutputPath, nil
	}

	if cfg.Mode == config.RecordModeSequential {
		return nextSequentialPath(cfg.OutputPath)
	}

	name := fmt.Sprintf("skylink_%s_%s.mp4",
		time.Now().Format("20060102-150405"),
		uuid.New().String()[:8],
	)
	return filepath.Join(cfg.OutputPath, name), nil
}

// nextSequentialPath finds the lowest unused recording_NNNN.mp4 in dir.
func nextSequentialPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("record: failed to scan %s: %w", dir, err)
	}

	highest := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "recording_%04d.mp4", &n); err == nil && n > highest {
			highest = n
		}
	}
	return filepath.Join(dir, fmt.Sprintf("recording_%04d.mp4", highest+1)), nil
}
