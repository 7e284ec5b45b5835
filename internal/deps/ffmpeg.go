package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CheckEncoder reports whether the ffmpeg build lists encoder in
// `ffmpeg -encoders`. "copy" is always available.
func CheckEncoder(ctx context.Context, ffmpeg, encoder string) Status {
	encoder = strings.TrimSpace(encoder)
	status := Status{
		Name:        "encoder " + encoder,
		Command:     ffmpeg,
		Description: "FFmpeg encoder used for transcoded streams",
	}
	if encoder == "" || encoder == "copy" {
		status.Available = true
		return status
	}

	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	if hasEncoder(out, encoder) {
		status.Available = true
		return status
	}
	status.Detail = fmt.Sprintf("ffmpeg build does not provide %q", encoder)
	return status
}

// Encoder lines look like " V....D libx264   libx264 H.264 / AVC ...".
func hasEncoder(listing []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && len(fields[0]) == 6 && fields[1] == encoder {
			return true
		}
	}
	return false
}
