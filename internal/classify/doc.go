// Package classify decides what conversion a media file needs.
//
// Classify is a pure function of a probed ffprobe.Profile and the policy's
// targets. Planner wraps probing and classification and derives the output
// path so callers get a complete Plan for a source file.
package classify
