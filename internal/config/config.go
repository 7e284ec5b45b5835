package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"pengystream/internal/policy"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the watched library roots and the daemon state directory.
type Paths struct {
	WatchDirs []string `toml:"watch_dirs"`
	LogDir    string   `toml:"log_dir"`
}

// Encoding contains the compatibility targets and transform tool settings.
type Encoding struct {
	MaxConcurrent    int      `toml:"max_concurrent"`
	VideoCodec       string   `toml:"video_codec"`
	AudioCodec       string   `toml:"audio_codec"`
	MaxResolution    string   `toml:"max_resolution"`
	CopyIfCompatible bool     `toml:"copy_if_compatible"`
	OutputSuffix     string   `toml:"output_suffix"`
	Extensions       []string `toml:"extensions"`
	VideoEncoder     string   `toml:"video_encoder"`
	VideoPreset      string   `toml:"video_preset"`
	VideoCRF         int      `toml:"video_crf"`
	AudioEncoder     string   `toml:"audio_encoder"`
	AudioBitrate     string   `toml:"audio_bitrate"`

	// MaxHeight is derived from MaxResolution during normalization.
	MaxHeight int `toml:"-"`
}

// LoadSettings contains the CPU/GPU admission thresholds.
type LoadSettings struct {
	CPUThreshold   float64 `toml:"cpu_threshold"`
	GPUThreshold   float64 `toml:"gpu_threshold"`
	RecheckSeconds int     `toml:"recheck_seconds"`
}

// Workflow contains daemon timing and retry intervals, all in seconds.
type Workflow struct {
	PollInterval          int `toml:"poll_interval"`
	CleanupInterval       int `toml:"cleanup_interval"`
	AdmissionRetrySeconds int `toml:"admission_retry_seconds"`
	StabilitySeconds      int `toml:"stability_seconds"`
	DebounceSeconds       int `toml:"debounce_seconds"`
	ShutdownTimeout       int `toml:"shutdown_timeout"`
	ProbeRetrySeconds     int `toml:"probe_retry_seconds"`
	ProbeMaxAttempts      int `toml:"probe_max_attempts"`
}

// Tools names the external binaries the daemon drives.
type Tools struct {
	FFmpeg    string `toml:"ffmpeg"`
	FFprobe   string `toml:"ffprobe"`
	NvidiaSMI string `toml:"nvidia_smi"`
}

// API contains the status/metrics HTTP listener settings. An empty bind
// disables the listener.
type API struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for PengyStream.
type Config struct {
	Paths    Paths        `toml:"paths"`
	Encoding Encoding     `toml:"encoding"`
	Load     LoadSettings `toml:"load"`
	Workflow Workflow     `toml:"workflow"`
	Tools    Tools        `toml:"tools"`
	API      API          `toml:"api"`
	Logging  Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pengystream/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pengystream.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory used for logs, the pid file
// and the instance lock.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

// Policy builds the immutable policy shared by the coordination engine.
func (c *Config) Policy() policy.Policy {
	extensions := make([]string, len(c.Encoding.Extensions))
	copy(extensions, c.Encoding.Extensions)
	return policy.Policy{
		MaxConcurrent:     c.Encoding.MaxConcurrent,
		VideoCodec:        c.Encoding.VideoCodec,
		AudioCodec:        c.Encoding.AudioCodec,
		MaxHeight:         c.Encoding.MaxHeight,
		CopyIfCompatible:  c.Encoding.CopyIfCompatible,
		CPUThreshold:      c.Load.CPUThreshold,
		GPUThreshold:      c.Load.GPUThreshold,
		LoadRecheck:       seconds(c.Load.RecheckSeconds),
		PollInterval:      seconds(c.Workflow.PollInterval),
		CleanupInterval:   seconds(c.Workflow.CleanupInterval),
		AdmissionRetry:    seconds(c.Workflow.AdmissionRetrySeconds),
		StabilityInterval: seconds(c.Workflow.StabilitySeconds),
		DebounceWindow:    seconds(c.Workflow.DebounceSeconds),
		ShutdownTimeout:   seconds(c.Workflow.ShutdownTimeout),
		ProbeRetryDelay:   seconds(c.Workflow.ProbeRetrySeconds),
		ProbeMaxAttempts:  c.Workflow.ProbeMaxAttempts,
		Suffix:            c.Encoding.OutputSuffix,
		Extensions:        extensions,
	}
}

// Summary renders the effective settings in the order operators usually
// check them.
func (c *Config) Summary() [][2]string {
	return [][2]string{
		{"Watch dirs", strings.Join(c.Paths.WatchDirs, ", ")},
		{"Log dir", c.Paths.LogDir},
		{"Max encodes", fmt.Sprintf("%d", c.Encoding.MaxConcurrent)},
		{"Video", fmt.Sprintf("%s @ %dp", c.Encoding.VideoCodec, c.Encoding.MaxHeight)},
		{"Audio", c.Encoding.AudioCodec},
		{"CPU threshold", fmt.Sprintf("%g%%", c.Load.CPUThreshold)},
		{"GPU threshold", fmt.Sprintf("%g%%", c.Load.GPUThreshold)},
		{"Copy compatible", fmt.Sprintf("%t", c.Encoding.CopyIfCompatible)},
		{"Output suffix", c.Encoding.OutputSuffix},
		{"Rescan interval", seconds(c.Workflow.PollInterval).String()},
		{"Cleanup interval", seconds(c.Workflow.CleanupInterval).String()},
		{"API bind", c.API.Bind},
	}
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
