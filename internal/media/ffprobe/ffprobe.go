package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Channels  int    `json:"channels"`

	Disposition Disposition `json:"disposition"`
}

// Disposition carries the ffprobe stream flags the profile depends on.
type Disposition struct {
	AttachedPic int `json:"attached_pic"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Profile is the subset of a probe result the classifier needs. Codec names
// are taken from the first video and first audio stream.
type Profile struct {
	VideoCodec  string
	VideoHeight int
	AudioCodec  string
	Duration    time.Duration
	HasVideo    bool
	HasAudio    bool
}

// ErrNoStreams is returned when a file carries neither video nor audio.
var ErrNoStreams = errors.New("no video or audio streams")

// Prober inspects a media file and reports its profile.
type Prober interface {
	Probe(ctx context.Context, path string) (Profile, error)
}

// Runner is the Prober backed by the ffprobe binary.
type Runner struct {
	Binary string
}

// Probe implements Prober.
func (r Runner) Probe(ctx context.Context, path string) (Profile, error) {
	result, err := Inspect(ctx, r.Binary, path)
	if err != nil {
		return Profile{}, err
	}
	return result.Profile()
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Profile extracts the classifier view of the result.
func (r Result) Profile() (Profile, error) {
	var profile Profile
	for _, stream := range r.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			if profile.HasVideo || stream.Disposition.AttachedPic == 1 {
				continue
			}
			profile.HasVideo = true
			profile.VideoCodec = strings.ToLower(strings.TrimSpace(stream.CodecName))
			profile.VideoHeight = stream.Height
		case "audio":
			if profile.HasAudio {
				continue
			}
			profile.HasAudio = true
			profile.AudioCodec = strings.ToLower(strings.TrimSpace(stream.CodecName))
		}
	}
	if !profile.HasVideo && !profile.HasAudio {
		return Profile{}, ErrNoStreams
	}
	if seconds := r.DurationSeconds(); seconds > 0 {
		profile.Duration = time.Duration(seconds * float64(time.Second))
	}
	return profile, nil
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	value := parseFloat(r.Format.Duration)
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	return value
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
