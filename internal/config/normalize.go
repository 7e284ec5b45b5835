package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"pengystream/internal/policy"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEncoding(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	if len(c.Paths.WatchDirs) == 0 {
		if value, ok := os.LookupEnv(watchDirsEnv); ok {
			c.Paths.WatchDirs = strings.Split(value, ",")
		}
	}
	dirs := make([]string, 0, len(c.Paths.WatchDirs))
	seen := make(map[string]struct{}, len(c.Paths.WatchDirs))
	for _, dir := range c.Paths.WatchDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(dir))
		if err != nil {
			return fmt.Errorf("paths.watch_dirs: %w", err)
		}
		if _, exists := seen[expanded]; exists {
			continue
		}
		seen[expanded] = struct{}{}
		dirs = append(dirs, expanded)
	}
	c.Paths.WatchDirs = dirs

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEncoding() error {
	c.Encoding.VideoCodec = policy.Fold(c.Encoding.VideoCodec)
	c.Encoding.AudioCodec = policy.Fold(c.Encoding.AudioCodec)
	c.Encoding.OutputSuffix = strings.TrimSpace(c.Encoding.OutputSuffix)
	if c.Encoding.OutputSuffix == "" {
		c.Encoding.OutputSuffix = defaultOutputSuffix
	}

	height, err := ParseResolution(c.Encoding.MaxResolution)
	if err != nil {
		return fmt.Errorf("encoding.max_resolution: %w", err)
	}
	c.Encoding.MaxHeight = height

	if len(c.Encoding.Extensions) == 0 {
		c.Encoding.Extensions = defaultExtensions()
	}
	exts := make([]string, 0, len(c.Encoding.Extensions))
	seen := make(map[string]struct{}, len(c.Encoding.Extensions))
	for _, ext := range c.Encoding.Extensions {
		normalized := policy.Fold(ext)
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Encoding.Extensions = exts

	c.Encoding.VideoEncoder = strings.TrimSpace(c.Encoding.VideoEncoder)
	if c.Encoding.VideoEncoder == "" {
		c.Encoding.VideoEncoder = defaultVideoEncoder
	}
	c.Encoding.VideoPreset = strings.TrimSpace(c.Encoding.VideoPreset)
	c.Encoding.AudioEncoder = strings.TrimSpace(c.Encoding.AudioEncoder)
	if c.Encoding.AudioEncoder == "" {
		c.Encoding.AudioEncoder = defaultAudioEncoder
	}
	c.Encoding.AudioBitrate = strings.TrimSpace(c.Encoding.AudioBitrate)
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	c.Tools.NvidiaSMI = strings.TrimSpace(c.Tools.NvidiaSMI)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// ParseResolution accepts "1440p", "1440P" or "1440" and returns the height
// in pixels.
func ParseResolution(value string) (int, error) {
	trimmed := strings.TrimSuffix(policy.Fold(value), "p")
	if trimmed == "" {
		return 0, fmt.Errorf("empty resolution")
	}
	height, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid resolution %q", value)
	}
	if height <= 0 {
		return 0, fmt.Errorf("resolution must be positive, got %q", value)
	}
	return height, nil
}
