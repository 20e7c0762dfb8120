// SPDX-License-Identifier: MIT

// Package config loads and validates the vodhub runtime configuration.
// Values come from the environment (VODHUB_* variables) with an optional
// YAML file taking precedence when provided via --config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the effective runtime configuration of the daemon.
type AppConfig struct {
	// HTTP
	Listen         string   `yaml:"listen"`
	APIToken       string   `yaml:"apiToken"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	TracingEnabled bool     `yaml:"tracingEnabled"`
	RateLimitRPM   int      `yaml:"rateLimitRPM"`

	// Storage layout
	DataDir  string `yaml:"dataDir"`
	ChunkDir string `yaml:"chunkDir"` // in-flight chunk artifacts
	MediaDir string `yaml:"mediaDir"` // assembled source files
	HLSDir   string `yaml:"hlsDir"`   // published renditions and manifests

	// Upload policy
	MaxFileSize int64         `yaml:"maxFileSize"` // bytes
	MinDiskFree int64         `yaml:"minDiskFree"` // bytes
	RequireInit bool          `yaml:"requireInit"`
	SessionTTL  time.Duration `yaml:"sessionTTL"`
	SweepEvery  time.Duration `yaml:"sweepEvery"`

	// Transcoding
	FFmpegPath      string   `yaml:"ffmpegPath"`
	FFprobePath     string   `yaml:"ffprobePath"`
	Workers         int      `yaml:"workers"`
	QueueDepth      int      `yaml:"queueDepth"`
	SegmentDuration int      `yaml:"segmentDuration"` // seconds
	Qualities       []string `yaml:"qualities"`

	// Counters
	RedisAddr string `yaml:"redisAddr"` // empty disables the Redis counter buffer

	// Logging
	LogLevel string `yaml:"logLevel"`
}

// FromEnv builds an AppConfig from VODHUB_* environment variables.
func FromEnv() AppConfig {
	dataDir := ParseString("VODHUB_DATA", "/var/lib/vodhub")
	return AppConfig{
		Listen:         ParseString("VODHUB_LISTEN", ":8080"),
		APIToken:       ParseString("VODHUB_API_TOKEN", ""),
		AllowedOrigins: ParseStringSlice("VODHUB_ALLOWED_ORIGINS", nil),
		TracingEnabled: ParseBool("VODHUB_TRACING", false),
		RateLimitRPM:   ParseInt("VODHUB_RATE_LIMIT_RPM", 600),

		DataDir:  dataDir,
		ChunkDir: ParseString("VODHUB_CHUNK_DIR", filepath.Join(dataDir, "chunks")),
		MediaDir: ParseString("VODHUB_MEDIA_DIR", filepath.Join(dataDir, "media")),
		HLSDir:   ParseString("VODHUB_HLS_DIR", filepath.Join(dataDir, "hls")),

		MaxFileSize: ParseInt64("VODHUB_MAX_FILE_SIZE", 8<<30), // 8 GiB
		MinDiskFree: ParseInt64("VODHUB_MIN_DISK_FREE", 1<<30), // 1 GiB
		RequireInit: ParseBool("VODHUB_REQUIRE_INIT", true),
		SessionTTL:  ParseDuration("VODHUB_SESSION_TTL", 24*time.Hour),
		SweepEvery:  ParseDuration("VODHUB_SWEEP_EVERY", time.Hour),

		FFmpegPath:      ParseString("VODHUB_FFMPEG", "ffmpeg"),
		FFprobePath:     ParseString("VODHUB_FFPROBE", "ffprobe"),
		Workers:         ParseInt("VODHUB_TRANSCODE_WORKERS", 2),
		QueueDepth:      ParseInt("VODHUB_TRANSCODE_QUEUE", 16),
		SegmentDuration: ParseInt("VODHUB_SEGMENT_DURATION", 6),
		Qualities:       ParseStringSlice("VODHUB_QUALITIES", []string{"480p", "720p", "1080p", "2160p"}),

		RedisAddr: ParseString("VODHUB_REDIS_ADDR", ""),

		LogLevel: ParseString("LOG_LEVEL", "info"),
	}
}

// LoadFile overlays a YAML config file onto cfg. Unset file fields keep the
// env-derived values because yaml only writes keys that are present.
func LoadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations that cannot work.
func (c AppConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be positive, got %d", c.MaxFileSize)
	}
	if c.MinDiskFree < 0 {
		return fmt.Errorf("minDiskFree must not be negative, got %d", c.MinDiskFree)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queueDepth must be positive, got %d", c.QueueDepth)
	}
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("segmentDuration must be positive, got %d", c.SegmentDuration)
	}
	if len(c.Qualities) == 0 {
		return fmt.Errorf("at least one target quality is required")
	}
	for _, dir := range []string{c.ChunkDir, c.MediaDir, c.HLSDir} {
		if dir == "" {
			return fmt.Errorf("storage directories must not be empty")
		}
	}
	return nil
}

// EnsureDirs creates the storage directories if they do not exist.
func (c AppConfig) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.ChunkDir, c.MediaDir, c.HLSDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
