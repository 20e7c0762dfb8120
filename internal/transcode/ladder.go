// SPDX-License-Identifier: MIT

package transcode

import "github.com/streamloft/vodhub/internal/hls"

// Profile is one target rendition of the quality ladder.
type Profile struct {
	Label     string
	Width     int
	Height    int
	Bandwidth int // peak bits per second advertised in the master playlist
}

// ladder is the fixed enumerated set of supported target resolutions. The
// set is decided at job-submission time, not discovered from encoder output,
// so results are deterministic.
var ladder = []Profile{
	{Label: "480p", Width: 854, Height: 480, Bandwidth: 1_500_000},
	{Label: "720p", Width: 1280, Height: 720, Bandwidth: 3_000_000},
	{Label: "1080p", Width: 1920, Height: 1080, Bandwidth: 6_000_000},
	{Label: "2160p", Width: 3840, Height: 2160, Bandwidth: 25_000_000},
}

// BuildLadder selects the renditions for a source: 480p is always included
// as the floor; higher rungs require the source to be at least that tall.
// allowed filters against the configured quality labels.
func BuildLadder(sourceHeight int, allowed []string) []Profile {
	allowedSet := make(map[string]bool, len(allowed))
	for _, q := range allowed {
		allowedSet[q] = true
	}

	var profiles []Profile
	for _, p := range ladder {
		if !allowedSet[p.Label] {
			continue
		}
		if p.Height > 480 && sourceHeight < p.Height {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// Variants maps profiles to master-playlist entries.
func Variants(profiles []Profile) []hls.Variant {
	out := make([]hls.Variant, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, hls.Variant{
			Label:     p.Label,
			Width:     p.Width,
			Height:    p.Height,
			Bandwidth: p.Bandwidth,
			URI:       p.Label + "/playlist.m3u8",
		})
	}
	return out
}
