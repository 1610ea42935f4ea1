// Package display resolves the output configuration (connector, plane,
// mode) the decoded video is presented on. Resolution happens once at
// startup; a failure here is fatal to the process.
package display

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/e7canasta/skylink-receiver/internal/config"
)

// Target is the resolved display output descriptor consumed by the decoder.
type Target struct {
	CardPath  string
	Connector string
	PlaneID   int
	Width     int
	Height    int
	RefreshHz int
}

// Resolve produces a display target from an opened display device and the
// configuration. The device fd is validated; the preferred mode is read from
// sysfs when the connector exposes one, otherwise a 1080p fallback applies.
func Resolve(fd int, cfg *config.Config) (Target, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Target{}, fmt.Errorf("display: invalid device descriptor for %s: %w", cfg.CardPath, err)
	}

	t := Target{
		CardPath:  cfg.CardPath,
		Connector: cfg.ConnectorName,
		PlaneID:   cfg.PlaneID,
		Width:     1920,
		Height:    1080,
		RefreshHz: 60,
	}

	if w, h, ok := preferredMode(cfg.CardPath, cfg.ConnectorName); ok {
		t.Width, t.Height = w, h
	}

	slog.Info("display: target resolved",
		"card", t.CardPath,
		"connector", t.Connector,
		"plane_id", t.PlaneID,
		"mode", fmt.Sprintf("%dx%d", t.Width, t.Height),
	)
	return t, nil
}

// preferredMode reads the first advertised mode of the connector from
// /sys/class/drm/<card>-<connector>/modes. Best effort: any failure simply
// keeps the fallback mode.
func preferredMode(cardPath, connector string) (int, int, bool) {
	if connector == "" {
		return 0, 0, false
	}
	card := filepath.Base(cardPath)
	path := filepath.Join("/sys/class/drm", card+"-"+connector, "modes")

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, false
	}
	return parseMode(scanner.Text())
}

// parseMode parses a sysfs mode line of the form "1920x1080".
func parseMode(line string) (int, int, bool) {
	ws, hs, found := strings.Cut(strings.TrimSpace(line), "x")
	if !found {
		return 0, 0, false
	}
	var w, h int
	if _, err := fmt.Sscanf(ws, "%d", &w); err != nil || w <= 0 {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(hs, "%d", &h); err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
