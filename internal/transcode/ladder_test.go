// SPDX-License-Identifier: MIT

package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allQualities = []string{"480p", "720p", "1080p", "2160p"}

func labels(profiles []Profile) []string {
	var out []string
	for _, p := range profiles {
		out = append(out, p.Label)
	}
	return out
}

func TestBuildLadder(t *testing.T) {
	tests := []struct {
		name         string
		sourceHeight int
		allowed      []string
		want         []string
	}{
		{"sd source gets floor only", 360, allQualities, []string{"480p"}},
		{"480p source", 480, allQualities, []string{"480p"}},
		{"720p source", 720, allQualities, []string{"480p", "720p"}},
		{"1080p source", 1080, allQualities, []string{"480p", "720p", "1080p"}},
		{"4k source", 2160, allQualities, []string{"480p", "720p", "1080p", "2160p"}},
		{"odd height between rungs", 900, allQualities, []string{"480p", "720p"}},
		{"allowed filters", 2160, []string{"720p", "1080p"}, []string{"720p", "1080p"}},
		{"nothing allowed", 1080, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildLadder(tt.sourceHeight, tt.allowed)
			assert.Equal(t, tt.want, labels(got))
		})
	}
}

func TestBuildLadderProfiles(t *testing.T) {
	profiles := BuildLadder(1080, allQualities)
	require.Len(t, profiles, 3)
	assert.Equal(t, Profile{Label: "480p", Width: 854, Height: 480, Bandwidth: 1_500_000}, profiles[0])
	assert.Equal(t, Profile{Label: "1080p", Width: 1920, Height: 1080, Bandwidth: 6_000_000}, profiles[2])
}

func TestVariants(t *testing.T) {
	variants := Variants(BuildLadder(720, allQualities))
	require.Len(t, variants, 2)
	assert.Equal(t, "480p/playlist.m3u8", variants[0].URI)
	assert.Equal(t, "720p/playlist.m3u8", variants[1].URI)
	assert.Equal(t, 3_000_000, variants[1].Bandwidth)
}
