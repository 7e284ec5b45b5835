package policy

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// PartialMarker is inserted between the suffix and the extension of files
// that are still being written by the transform tool.
const PartialMarker = ".partial"

// Policy is the read-only configuration bundle consumed by the scheduler,
// classifier, admission controller, reconciliation sweep and event intake.
type Policy struct {
	MaxConcurrent int

	VideoCodec       string
	AudioCodec       string
	MaxHeight        int
	CopyIfCompatible bool

	CPUThreshold float64
	GPUThreshold float64
	LoadRecheck  time.Duration

	PollInterval    time.Duration
	CleanupInterval time.Duration
	AdmissionRetry  time.Duration

	StabilityInterval time.Duration
	DebounceWindow    time.Duration
	ShutdownTimeout   time.Duration
	ProbeRetryDelay   time.Duration
	ProbeMaxAttempts  int

	Suffix     string
	Extensions []string
}

var folder = cases.Fold()

// Fold normalizes a codec name or extension for comparison.
func Fold(value string) string {
	return folder.String(strings.TrimSpace(value))
}

// IsMedia reports whether path carries one of the recognized media extensions.
func (p Policy) IsMedia(path string) bool {
	ext := Fold(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, candidate := range p.Extensions {
		if Fold(candidate) == ext {
			return true
		}
	}
	return false
}

// IsConverted reports whether the file name already carries the output suffix
// marker, either as a finished output or as an in-progress partial file.
func (p Policy) IsConverted(path string) bool {
	if p.Suffix == "" {
		return false
	}
	return strings.Contains(stem(path), p.Suffix)
}

// IsPartial reports whether path is an in-progress output.
func (p Policy) IsPartial(path string) bool {
	return strings.HasSuffix(stem(path), p.Suffix+PartialMarker)
}

// OutputPath derives the converted sibling for a source file:
// <dir>/<stem><suffix><ext>.
func (p Policy) OutputPath(source string) string {
	dir, base := filepath.Split(source)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+p.Suffix+ext)
}

// PartialPath is where the transform tool writes before the output is
// renamed into place.
func (p Policy) PartialPath(source string) string {
	dir, base := filepath.Split(source)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+p.Suffix+PartialMarker+ext)
}

// SourcePath strips the suffix from an output (or partial) file name to find
// the source it was produced from. ok is false when path is not an output.
func (p Policy) SourcePath(output string) (string, bool) {
	if p.Suffix == "" {
		return "", false
	}
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.TrimSuffix(name, PartialMarker)
	if !strings.HasSuffix(name, p.Suffix) {
		return "", false
	}
	name = strings.TrimSuffix(name, p.Suffix)
	if name == "" {
		return "", false
	}
	return filepath.Join(dir, name+ext), true
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
