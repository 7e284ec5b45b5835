package transcode

import (
	"path/filepath"
	"strconv"
	"strings"

	"pengystream/internal/classify"
)

// Settings carries the encoder parameters used when a stream is re-encoded.
type Settings struct {
	Binary       string
	VideoEncoder string
	VideoPreset  string
	VideoCRF     int
	AudioEncoder string
	AudioBitrate string
}

var faststartContainers = map[string]struct{}{
	".mp4": {},
	".m4v": {},
	".mov": {},
}

// BuildArgs returns the ffmpeg argument list (without the binary) for plan.
func BuildArgs(s Settings, plan classify.Plan) []string {
	args := make([]string, 0, 32)
	args = append(args, "-hide_banner", "-nostdin", "-y", "-loglevel", "error")
	args = append(args, "-i", plan.Source)

	args = append(args, "-map", "0:v:0?", "-map", "0:a:0?")

	if plan.Action.CopiesVideo() {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", s.VideoEncoder)
		if s.VideoPreset != "" {
			args = append(args, "-preset", s.VideoPreset)
		}
		args = append(args, "-crf", strconv.Itoa(s.VideoCRF))
		if plan.ScaleHeight > 0 {
			args = append(args, "-vf", "scale=-2:"+strconv.Itoa(plan.ScaleHeight))
		}
	}

	if plan.Action.CopiesAudio() {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", s.AudioEncoder)
		if s.AudioBitrate != "" {
			args = append(args, "-b:a", s.AudioBitrate)
		}
	}

	args = append(args, "-map_metadata", "0")
	if _, ok := faststartContainers[strings.ToLower(filepath.Ext(plan.Partial))]; ok {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, plan.Partial)
	return args
}
