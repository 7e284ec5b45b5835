// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Profile: first video/audio codec, video height and duration
//   - Prober: the interface the classifier depends on; Runner implements it
//     by executing the ffprobe binary
package ffprobe
