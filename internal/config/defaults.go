package config

const (
	defaultLogDir           = "~/.local/share/pengystream"
	defaultLogRetentionDays = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	defaultMaxConcurrent = 2
	defaultVideoCodec    = "h264"
	defaultAudioCodec    = "aac"
	defaultMaxResolution = "1440p"
	defaultOutputSuffix  = "-PengyStream"
	defaultVideoEncoder  = "libx264"
	defaultVideoPreset   = "medium"
	defaultVideoCRF      = 23
	defaultAudioEncoder  = "aac"
	defaultAudioBitrate  = "192k"

	defaultCPUThreshold   = 80
	defaultGPUThreshold   = 80
	defaultRecheckSeconds = 5

	defaultPollInterval          = 60
	defaultCleanupInterval       = 3600
	defaultAdmissionRetrySeconds = 10
	defaultStabilitySeconds      = 5
	defaultDebounceSeconds       = 2
	defaultShutdownTimeout       = 30
	defaultProbeRetrySeconds     = 30
	defaultProbeMaxAttempts      = 3

	defaultFFmpeg    = "ffmpeg"
	defaultFFprobe   = "ffprobe"
	defaultNvidiaSMI = "nvidia-smi"

	defaultAPIBind = "127.0.0.1:7488"

	watchDirsEnv = "PENGYSTREAM_WATCH_DIRS"
)

func defaultExtensions() []string {
	return []string{".mp4", ".mkv", ".avi", ".mov", ".m4v", ".wmv", ".flv", ".webm", ".ts", ".m2ts"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Encoding: Encoding{
			MaxConcurrent:    defaultMaxConcurrent,
			VideoCodec:       defaultVideoCodec,
			AudioCodec:       defaultAudioCodec,
			MaxResolution:    defaultMaxResolution,
			CopyIfCompatible: true,
			OutputSuffix:     defaultOutputSuffix,
			Extensions:       defaultExtensions(),
			VideoEncoder:     defaultVideoEncoder,
			VideoPreset:      defaultVideoPreset,
			VideoCRF:         defaultVideoCRF,
			AudioEncoder:     defaultAudioEncoder,
			AudioBitrate:     defaultAudioBitrate,
		},
		Load: LoadSettings{
			CPUThreshold:   defaultCPUThreshold,
			GPUThreshold:   defaultGPUThreshold,
			RecheckSeconds: defaultRecheckSeconds,
		},
		Workflow: Workflow{
			PollInterval:          defaultPollInterval,
			CleanupInterval:       defaultCleanupInterval,
			AdmissionRetrySeconds: defaultAdmissionRetrySeconds,
			StabilitySeconds:      defaultStabilitySeconds,
			DebounceSeconds:       defaultDebounceSeconds,
			ShutdownTimeout:       defaultShutdownTimeout,
			ProbeRetrySeconds:     defaultProbeRetrySeconds,
			ProbeMaxAttempts:      defaultProbeMaxAttempts,
		},
		Tools: Tools{
			FFmpeg:    defaultFFmpeg,
			FFprobe:   defaultFFprobe,
			NvidiaSMI: defaultNvidiaSMI,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
