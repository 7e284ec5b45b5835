package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateLoad(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if len(c.Paths.WatchDirs) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/pengystream/config.toml"
		}
		return fmt.Errorf("paths.watch_dirs must list at least one directory. Set %s or edit %s (create with 'pengystream config init')", watchDirsEnv, defaultPath)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.MaxConcurrent < 1 {
		return errors.New("encoding.max_concurrent must be at least 1")
	}
	if c.Encoding.VideoCodec == "" {
		return errors.New("encoding.video_codec must be set")
	}
	if c.Encoding.AudioCodec == "" {
		return errors.New("encoding.audio_codec must be set")
	}
	if c.Encoding.MaxHeight <= 0 {
		return errors.New("encoding.max_resolution must be positive")
	}
	if strings.ContainsAny(c.Encoding.OutputSuffix, `/\.`) {
		return fmt.Errorf("encoding.output_suffix %q must not contain path separators or dots", c.Encoding.OutputSuffix)
	}
	if len(c.Encoding.Extensions) == 0 {
		return errors.New("encoding.extensions must include at least one extension")
	}
	if c.Encoding.VideoCRF < 0 || c.Encoding.VideoCRF > 51 {
		return errors.New("encoding.video_crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateLoad() error {
	if c.Load.CPUThreshold < 0 || c.Load.CPUThreshold > 100 {
		return errors.New("load.cpu_threshold must be between 0 and 100")
	}
	if c.Load.GPUThreshold < 0 || c.Load.GPUThreshold > 100 {
		return errors.New("load.gpu_threshold must be between 0 and 100")
	}
	if c.Load.RecheckSeconds < 0 {
		return errors.New("load.recheck_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":           c.Workflow.PollInterval,
		"workflow.cleanup_interval":        c.Workflow.CleanupInterval,
		"workflow.admission_retry_seconds": c.Workflow.AdmissionRetrySeconds,
		"workflow.stability_seconds":       c.Workflow.StabilitySeconds,
		"workflow.shutdown_timeout":        c.Workflow.ShutdownTimeout,
		"workflow.probe_retry_seconds":     c.Workflow.ProbeRetrySeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.DebounceSeconds < 0 {
		return errors.New("workflow.debounce_seconds must be >= 0")
	}
	if c.Workflow.ProbeMaxAttempts < 1 {
		return errors.New("workflow.probe_max_attempts must be at least 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
