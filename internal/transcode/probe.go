// SPDX-License-Identifier: MIT

package transcode

import (
	"context"
	"strconv"
	"strings"
)

// MediaInfo is the subset of probe output the ladder and catalog need.
type MediaInfo struct {
	Width           int
	Height          int
	DurationSeconds int
}

// Probe inspects the first video stream of input with ffprobe. A source
// whose attributes cannot be parsed falls back to 1080p dimensions so the
// ladder still produces a sensible default set.
func Probe(ctx context.Context, runner Runner, ffprobePath, input string) (MediaInfo, error) {
	out, err := runner.Run(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "csv=p=0",
		input,
	)
	if err != nil {
		return MediaInfo{}, err
	}

	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, ",")
	if len(parts) >= 2 {
		w, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
		h, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if werr == nil && herr == nil {
			info := MediaInfo{Width: w, Height: h}
			if len(parts) >= 3 {
				if d, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
					info.DurationSeconds = int(d)
				}
			}
			return info, nil
		}
	}

	return MediaInfo{Width: 1920, Height: 1080}, nil
}
