package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LoadFile merges a sectioned key=value configuration file into cfg.
// Recognized sections are [video] and [record]; keys outside any section are
// treated as global. Lines starting with '#' or ';' are comments. Malformed
// lines and unknown keys are logged and skipped, matching the forgiving
// behavior expected of an on-device config file.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer f.Close()

	section := ""
	lineNo := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			close := strings.IndexByte(line, ']')
			if close < 0 {
				slog.Warn("config: missing ']'", "path", path, "line", lineNo)
				continue
			}
			section = strings.TrimSpace(line[1:close])
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			slog.Warn("config: missing '='", "path", path, "line", lineNo)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if err := applyKey(section, key, value, cfg); err != nil {
			slog.Warn("config: ignoring key", "path", path, "line", lineNo, "key", key, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return nil
}

func applyKey(section, key, value string, cfg *Config) error {
	switch strings.ToLower(section) {
	case "", "video":
		return applyGlobalKey(key, value, cfg)
	case "record":
		return applyRecordKey(key, value, cfg)
	default:
		return applyGlobalKey(key, value, cfg)
	}
}

func applyGlobalKey(key, value string, cfg *Config) error {
	switch strings.ToLower(key) {
	case "card_path":
		cfg.CardPath = value
		return nil
	case "connector", "connector_name":
		cfg.ConnectorName = value
		return nil
	case "plane_id":
		return parseIntKey(key, value, &cfg.PlaneID)
	case "udp_port":
		return parseIntKey(key, value, &cfg.UDPPort)
	case "vid_pt", "video_payload_type":
		return parseIntKey(key, value, &cfg.VideoPayloadType)
	case "jitter_buffer_ms":
		return parseIntKey(key, value, &cfg.JitterBufferMS)
	case "sink_max_buffers":
		return parseIntKey(key, value, &cfg.SinkMaxBuffers)
	case "gst_log":
		return parseBoolKey(key, value, &cfg.GstLog)
	}
	if sub, ok := strings.CutPrefix(strings.ToLower(key), "record."); ok {
		return applyRecordKey(sub, value, cfg)
	}
	return fmt.Errorf("config: unknown key: %s", key)
}

func applyRecordKey(key, value string, cfg *Config) error {
	switch strings.ToLower(key) {
	case "enable":
		return parseBoolKey("record."+key, value, &cfg.Record.Enable)
	case "output_path", "path":
		cfg.Record.OutputPath = value
		return nil
	case "mode":
		mode, err := ParseRecordMode(value)
		if err != nil {
			return err
		}
		cfg.Record.Mode = mode
		return nil
	}
	return fmt.Errorf("config: unknown record key: %s", key)
}

func parseIntKey(key, value string, out *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: invalid integer for %s: %q", key, value)
	}
	*out = v
	return nil
}

func parseBoolKey(key, value string, out *bool) error {
	switch strings.ToLower(value) {
	case "true", "yes", "1":
		*out = true
		return nil
	case "false", "no", "0":
		*out = false
		return nil
	}
	return fmt.Errorf("config: invalid boolean for %s: %q", key, value)
}
