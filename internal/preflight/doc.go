// Package preflight verifies the environment before the daemon starts
// watching: every watch directory must be readable and writable, ffmpeg and
// ffprobe must resolve, and the configured encoders must exist in the ffmpeg
// build. A failed required check aborts `pengystream run`.
//
// The CLI status command reuses the same checks to display environment
// health alongside the daemon's own report.
package preflight
