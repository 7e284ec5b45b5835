package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pengystream/internal/logging"
	"pengystream/internal/media/ffprobe"
	"pengystream/internal/policy"
)

// Action is the conversion the classifier selected for a file.
type Action int

const (
	Skip Action = iota
	CopyVideoTranscodeAudio
	TranscodeVideoCopyAudio
	TranscodeBoth
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case CopyVideoTranscodeAudio:
		return "copy-video-transcode-audio"
	case TranscodeVideoCopyAudio:
		return "transcode-video-copy-audio"
	case TranscodeBoth:
		return "transcode-both"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// CopiesVideo reports whether the video stream is passed through unchanged.
func (a Action) CopiesVideo() bool { return a == CopyVideoTranscodeAudio }

// CopiesAudio reports whether the audio stream is passed through unchanged.
func (a Action) CopiesAudio() bool { return a == TranscodeVideoCopyAudio }

// ErrProbe marks a failure to inspect the source. Callers treat it as "not
// ready yet" and retry later.
var ErrProbe = errors.New("probe failed")

// Plan is the classifier output for one source file.
type Plan struct {
	Action  Action
	Source  string
	Output  string
	Partial string
	// ScaleHeight is the target height when the video is transcoded and the
	// source exceeds the policy limit. Zero keeps the source height.
	ScaleHeight int
	Profile     ffprobe.Profile
}

var codecAliases = map[string]string{
	"avc":  "h264",
	"x264": "h264",
	"h265": "hevc",
	"x265": "hevc",
}

func canonicalCodec(name string) string {
	folded := policy.Fold(name)
	if alias, ok := codecAliases[folded]; ok {
		return alias
	}
	return folded
}

// SameCodec compares codec names case-insensitively, treating well-known
// aliases as equal.
func SameCodec(a, b string) bool {
	return canonicalCodec(a) == canonicalCodec(b)
}

func videoCompatible(profile ffprobe.Profile, p policy.Policy) bool {
	if !profile.HasVideo {
		return true
	}
	if !SameCodec(profile.VideoCodec, p.VideoCodec) {
		return false
	}
	return p.MaxHeight <= 0 || profile.VideoHeight <= p.MaxHeight
}

func audioCompatible(profile ffprobe.Profile, p policy.Policy) bool {
	if !profile.HasAudio {
		return true
	}
	return SameCodec(profile.AudioCodec, p.AudioCodec)
}

// Classify selects the conversion action for profile under p. A side with no
// stream counts as compatible, so a video-only or audio-only file is judged on
// the stream it has and is skipped when that stream already matches.
func Classify(profile ffprobe.Profile, p policy.Policy) Action {
	video := videoCompatible(profile, p)
	audio := audioCompatible(profile, p)
	switch {
	case video && audio:
		return Skip
	case !p.CopyIfCompatible:
		return TranscodeBoth
	case video:
		return CopyVideoTranscodeAudio
	case audio:
		return TranscodeVideoCopyAudio
	default:
		return TranscodeBoth
	}
}

// ScaleHeight returns the height the video should be scaled to, or zero when
// no scaling is needed.
func ScaleHeight(action Action, profile ffprobe.Profile, p policy.Policy) int {
	if action == Skip || action.CopiesVideo() {
		return 0
	}
	if p.MaxHeight > 0 && profile.VideoHeight > p.MaxHeight {
		return p.MaxHeight
	}
	return 0
}

// Planner probes a source and builds its Plan.
type Planner struct {
	prober ffprobe.Prober
	policy policy.Policy
	logger *slog.Logger
}

// NewPlanner constructs a planner around the given prober.
func NewPlanner(prober ffprobe.Prober, p policy.Policy, logger *slog.Logger) *Planner {
	return &Planner{
		prober: prober,
		policy: p,
		logger: logging.NewComponentLogger(logger, "classify"),
	}
}

// Plan probes source and classifies it. Probe failures are wrapped with
// ErrProbe.
func (p *Planner) Plan(ctx context.Context, source string) (Plan, error) {
	profile, err := p.prober.Probe(ctx, source)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s: %w", ErrProbe, source, err)
	}
	action := Classify(profile, p.policy)
	plan := Plan{
		Action:      action,
		Source:      source,
		Output:      p.policy.OutputPath(source),
		Partial:     p.policy.PartialPath(source),
		ScaleHeight: ScaleHeight(action, profile, p.policy),
		Profile:     profile,
	}
	attrs := append(logging.DecisionAttrs("classify", action.String(), p.reason(profile, action)),
		logging.String(logging.FieldSourcePath, source),
		logging.String("video_codec", profile.VideoCodec),
		logging.Int("video_height", profile.VideoHeight),
		logging.String("audio_codec", profile.AudioCodec),
	)
	if plan.ScaleHeight > 0 {
		attrs = append(attrs, logging.Int("scale_height", plan.ScaleHeight))
	}
	p.logger.Debug("file classified", logging.Args(attrs...)...)
	return plan, nil
}

func (p *Planner) reason(profile ffprobe.Profile, action Action) string {
	if action == Skip {
		return "streams already compatible"
	}
	video := videoCompatible(profile, p.policy)
	audio := audioCompatible(profile, p.policy)
	switch {
	case !video && !audio:
		return "video and audio incompatible"
	case !video:
		if SameCodec(profile.VideoCodec, p.policy.VideoCodec) {
			return "video exceeds max resolution"
		}
		return "video codec incompatible"
	default:
		return "audio codec incompatible"
	}
}
