// Package transcode drives the external ffmpeg process for a conversion plan.
//
// Tool.Start launches ffmpeg in its own process group, writing to the plan's
// partial path. The returned Process can be waited on once and terminated
// with a grace period: SIGTERM to the group, then SIGKILL.
package transcode
