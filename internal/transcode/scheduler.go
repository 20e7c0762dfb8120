// SPDX-License-Identifier: MIT

package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/streamloft/vodhub/internal/hls"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/metrics"
)

// Config holds scheduler tuning and tool locations.
type Config struct {
	Workers         int
	QueueDepth      int
	FFmpegPath      string
	FFprobePath     string
	HLSDir          string
	SegmentDuration int      // seconds per segment
	Qualities       []string // allowed ladder labels
	PublicHLSBase   string   // URL prefix for published manifests, e.g. "/hls"
}

// Scheduler owns the transcode job table and the bounded worker pool. The
// job table is the only shared mutable state; every read hands out a copy.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*Job

	queue   chan *Job
	cfg     Config
	runner  Runner
	catalog CatalogUpdater
	logger  zerolog.Logger

	wg      sync.WaitGroup
	started bool
}

// NewScheduler builds a Scheduler; call Start to launch the workers.
func NewScheduler(cfg Config, runner Runner, catalog CatalogUpdater) *Scheduler {
	if cfg.PublicHLSBase == "" {
		cfg.PublicHLSBase = "/hls"
	}
	return &Scheduler{
		jobs:    make(map[string]*Job),
		queue:   make(chan *Job, cfg.QueueDepth),
		cfg:     cfg,
		runner:  runner,
		catalog: catalog,
		logger:  log.WithComponent("transcode"),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Int("queue_depth", s.cfg.QueueDepth).
		Msg("transcode workers started")
}

// Stop waits for in-flight jobs to finish after ctx cancellation and marks
// anything still queued as failed so no job is silently dropped.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	for {
		select {
		case job := <-s.queue:
			s.fail(context.Background(), job, fmt.Errorf("daemon shutting down"))
			metrics.TranscodeQueueDepth.Dec()
		default:
			return
		}
	}
}

// Enqueue registers videoID for transcoding and schedules it. The HTTP
// completion path depends on this returning immediately: the job runs on a
// worker, never the caller. A saturated queue returns ErrQueueFull.
func (s *Scheduler) Enqueue(ctx context.Context, videoID, sourcePath string) error {
	job := &Job{
		VideoID:    videoID,
		SourcePath: sourcePath,
		Status:     JobProcessing,
		EnqueuedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if existing, ok := s.jobs[videoID]; ok && existing.Status == JobProcessing {
		s.mu.Unlock()
		return nil // already scheduled; Enqueue is idempotent per video
	}
	s.jobs[videoID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job:
		metrics.TranscodeQueueDepth.Inc()
		s.logger.Info().
			Str(log.FieldVideoID, videoID).
			Str(log.FieldSourcePath, sourcePath).
			Msg("transcode job enqueued")
		return nil
	default:
		s.mu.Lock()
		delete(s.jobs, videoID)
		s.mu.Unlock()
		metrics.TranscodeRejected.Inc()
		return ErrQueueFull
	}
}

// GetStatus returns a snapshot of the job for videoID. The copy reflects the
// latest committed transition; callers never observe a job mid-transition.
func (s *Scheduler) GetStatus(videoID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[videoID]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	snapshot.Qualities = append([]string(nil), job.Qualities...)
	return snapshot, true
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			metrics.TranscodeQueueDepth.Dec()
			s.process(ctx, job)
		}
	}
}

// process runs one job to a terminal state.
func (s *Scheduler) process(ctx context.Context, job *Job) {
	ctx = log.ContextWithVideoID(ctx, job.VideoID)
	logger := log.WithComponentFromContext(ctx, "transcode")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("transcode worker panicked")
			s.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()

	outputDir := filepath.Join(s.cfg.HLSDir, job.VideoID)
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		s.fail(ctx, job, fmt.Errorf("create output dir: %w", err))
		return
	}

	info, err := Probe(ctx, s.runner, s.cfg.FFprobePath, job.SourcePath)
	if err != nil {
		s.fail(ctx, job, fmt.Errorf("probe source: %w", err))
		return
	}
	logger.Info().
		Int("width", info.Width).
		Int("height", info.Height).
		Int("duration_s", info.DurationSeconds).
		Msg("source probed")

	profiles := BuildLadder(info.Height, s.cfg.Qualities)
	if len(profiles) == 0 {
		s.fail(ctx, job, fmt.Errorf("no eligible quality renditions for %dp source", info.Height))
		return
	}

	// One failed rendition fails the whole job; publishing a partial
	// ladder would leave players switching into missing streams.
	for _, p := range profiles {
		if err := s.encodeRendition(ctx, job, outputDir, p); err != nil {
			s.fail(ctx, job, fmt.Errorf("rendition %s: %w", p.Label, err))
			s.cleanupOutput(outputDir)
			return
		}
	}

	manifestPath := filepath.Join(outputDir, "master.m3u8")
	if err := writeMasterManifest(manifestPath, Variants(profiles)); err != nil {
		s.fail(ctx, job, fmt.Errorf("write master manifest: %w", err))
		s.cleanupOutput(outputDir)
		return
	}

	qualities := make([]string, 0, len(profiles))
	for _, p := range profiles {
		qualities = append(qualities, p.Label)
	}
	hlsURL := s.cfg.PublicHLSBase + "/" + job.VideoID + "/master.m3u8"

	if err := s.catalog.SetReady(ctx, job.VideoID, qualities, hlsURL, info.DurationSeconds, info.Width, info.Height); err != nil {
		s.fail(ctx, job, fmt.Errorf("publish catalog entry: %w", err))
		return
	}

	// The assembled source has served its purpose.
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str(log.FieldSourcePath, job.SourcePath).Msg("remove source file")
	}

	s.mu.Lock()
	job.Status = JobReady
	job.Qualities = qualities
	job.ManifestPath = manifestPath
	job.FinishedAt = time.Now().UTC()
	s.mu.Unlock()

	metrics.TranscodeJobs.WithLabelValues("ready").Inc()
	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	logger.Info().
		Strs("qualities", qualities).
		Dur("elapsed", time.Since(start)).
		Msg("transcode complete")
}

// encodeRendition runs one ffmpeg HLS encode. Flags follow the proven x264
// VOD settings: scale-and-pad to the target box, CRF quality mode and
// independent segments for clean bitrate switching.
func (s *Scheduler) encodeRendition(ctx context.Context, job *Job, outputDir string, p Profile) error {
	qualityDir := filepath.Join(outputDir, p.Label)
	if err := os.MkdirAll(qualityDir, 0o750); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", job.SourcePath,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			p.Width, p.Height, p.Width, p.Height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-profile:v", "high",
		"-level", "4.0",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-movflags", "+faststart",
		"-hls_time", fmt.Sprintf("%d", s.cfg.SegmentDuration),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(qualityDir, "seg_%03d.ts"),
		filepath.Join(qualityDir, "playlist.m3u8"),
	}

	logger := log.WithComponentFromContext(ctx, "transcode")
	logger.Debug().Str(log.FieldQuality, p.Label).Msg("encoding rendition")

	_, err := s.runner.Run(ctx, s.cfg.FFmpegPath, args...)
	return err
}

// fail moves job to its terminal Error state and propagates it to the
// catalog. Recovery is re-upload; failed jobs are never re-enqueued.
func (s *Scheduler) fail(ctx context.Context, job *Job, cause error) {
	s.mu.Lock()
	if job.Status != JobProcessing {
		s.mu.Unlock()
		return
	}
	job.Status = JobError
	job.Message = cause.Error()
	job.FinishedAt = time.Now().UTC()
	s.mu.Unlock()

	metrics.TranscodeJobs.WithLabelValues("error").Inc()
	failLogger := log.WithComponentFromContext(ctx, "transcode")
	failLogger.Error().
		Err(cause).
		Str(log.FieldVideoID, job.VideoID).
		Msg("transcode job failed")

	if err := s.catalog.SetError(context.WithoutCancel(ctx), job.VideoID); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldVideoID, job.VideoID).Msg("mark catalog entry failed")
	}
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str(log.FieldSourcePath, job.SourcePath).Msg("remove source file")
	}
}

func (s *Scheduler) cleanupOutput(outputDir string) {
	if err := os.RemoveAll(outputDir); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldOutputDir, outputDir).Msg("remove partial output")
	}
}

// writeMasterManifest writes the master playlist atomically: fsync before
// rename so a crash never publishes a torn manifest.
func writeMasterManifest(path string, variants []hls.Variant) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending manifest: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if err := hls.WriteMaster(pending, variants); err != nil {
		return fmt.Errorf("render manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace manifest: %w", err)
	}
	return nil
}
