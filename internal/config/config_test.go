// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	t.Setenv("TEST_STR_EMPTY", "")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_INT64", "8589934592")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_BAD", "yep")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_SLICE", "a, b ,,c")

	assert.Equal(t, "hello", ParseString("TEST_STR", "d"))
	assert.Equal(t, "d", ParseString("TEST_STR_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("TEST_STR_UNSET", "d"))

	assert.Equal(t, 42, ParseInt("TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("TEST_INT_BAD", 1))
	assert.Equal(t, int64(8589934592), ParseInt64("TEST_INT64", 1))

	assert.True(t, ParseBool("TEST_BOOL", false))
	assert.False(t, ParseBool("TEST_BOOL_BAD", false))

	assert.Equal(t, 90*time.Second, ParseDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("TEST_DUR_UNSET", time.Minute))

	assert.Equal(t, []string{"a", "b", "c"}, ParseStringSlice("TEST_SLICE", nil))
	assert.Equal(t, []string{"x"}, ParseStringSlice("TEST_SLICE_UNSET", []string{"x"}))
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, int64(8<<30), cfg.MaxFileSize)
	assert.Equal(t, int64(1<<30), cfg.MinDiskFree)
	assert.True(t, cfg.RequireInit)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 16, cfg.QueueDepth)
	assert.Equal(t, 6, cfg.SegmentDuration)
	assert.Equal(t, []string{"480p", "720p", "1080p", "2160p"}, cfg.Qualities)
	assert.Empty(t, cfg.RedisAddr)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VODHUB_LISTEN", ":9999")
	t.Setenv("VODHUB_DATA", "/srv/vod")
	t.Setenv("VODHUB_REQUIRE_INIT", "false")
	t.Setenv("VODHUB_TRANSCODE_WORKERS", "4")
	t.Setenv("VODHUB_QUALITIES", "480p,720p")

	cfg := FromEnv()
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "/srv/vod", cfg.DataDir)
	assert.Equal(t, filepath.Join("/srv/vod", "chunks"), cfg.ChunkDir)
	assert.False(t, cfg.RequireInit)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"480p", "720p"}, cfg.Qualities)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":7070"
workers: 8
qualities: ["480p"]
`), 0o600))

	cfg := FromEnv()
	require.NoError(t, LoadFile(path, &cfg))
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"480p"}, cfg.Qualities)
	// Keys absent from the file keep their env defaults.
	assert.Equal(t, int64(8<<30), cfg.MaxFileSize)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := FromEnv()
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("listen: [unterminated"), 0o600))
	assert.Error(t, LoadFile(bad, &cfg))
}

func TestValidate(t *testing.T) {
	valid := FromEnv()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty listen", func(c *AppConfig) { c.Listen = "" }},
		{"zero max file size", func(c *AppConfig) { c.MaxFileSize = 0 }},
		{"negative disk floor", func(c *AppConfig) { c.MinDiskFree = -1 }},
		{"zero workers", func(c *AppConfig) { c.Workers = 0 }},
		{"zero queue depth", func(c *AppConfig) { c.QueueDepth = 0 }},
		{"zero segment duration", func(c *AppConfig) { c.SegmentDuration = 0 }},
		{"no qualities", func(c *AppConfig) { c.Qualities = nil }},
		{"empty chunk dir", func(c *AppConfig) { c.ChunkDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
