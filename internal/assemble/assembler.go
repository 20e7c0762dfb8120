// SPDX-License-Identifier: MIT

// Package assemble turns a complete set of upload chunks into a single media
// file, registers it in the catalog and hands it to the transcode scheduler.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/metrics"
	"github.com/streamloft/vodhub/internal/transcode"
	"github.com/streamloft/vodhub/internal/upload"
)

// ErrIncompleteUpload is returned by Complete when declared chunks are still
// missing. The client keeps sending chunks and retries completion.
var ErrIncompleteUpload = errors.New("upload incomplete")

// CatalogWriter is the slice of the catalog the assembler needs.
type CatalogWriter interface {
	Create(ctx context.Context, v catalog.Video) error
	Delete(ctx context.Context, id string) error
}

// Enqueuer schedules an assembled file for transcoding.
type Enqueuer interface {
	Enqueue(ctx context.Context, videoID, sourcePath string) error
}

// Assembler concatenates chunk files into the final upload and kicks off
// processing. Completion for the same session key is coalesced so concurrent
// retries of the complete call produce exactly one video.
type Assembler struct {
	tracker  *upload.Tracker
	receiver *upload.Receiver
	catalog  CatalogWriter
	queue    Enqueuer
	mediaDir string

	group  singleflight.Group
	logger zerolog.Logger
}

// New wires an Assembler.
func New(tracker *upload.Tracker, receiver *upload.Receiver, cat CatalogWriter, queue Enqueuer, mediaDir string) *Assembler {
	return &Assembler{
		tracker:  tracker,
		receiver: receiver,
		catalog:  cat,
		queue:    queue,
		mediaDir: mediaDir,
		logger:   log.WithComponent("assemble"),
	}
}

// Complete verifies the session, assembles the file and enqueues the
// transcode job. It returns the catalog video ID. Calling it again for the
// same session, concurrently or after the first call succeeded, yields the
// same ID.
func (a *Assembler) Complete(ctx context.Context, key, uploader string) (string, error) {
	v, err, _ := a.group.Do(key, func() (any, error) {
		return a.complete(ctx, key, uploader)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *Assembler) complete(ctx context.Context, key, uploader string) (string, error) {
	ctx = log.ContextWithSessionKey(ctx, key)
	logger := log.WithComponentFromContext(ctx, "assemble")

	sess, err := a.tracker.Session(ctx, key)
	if err != nil {
		return "", err
	}

	// A completed session carries the video ID it produced; a retried
	// complete call after a dropped response converges on the same video.
	if sess.VideoID != "" {
		return sess.VideoID, nil
	}

	if !sess.Complete() {
		missing := sess.MissingChunks()
		preview := missing
		if len(preview) > 8 {
			preview = preview[:8]
		}
		return "", fmt.Errorf("%w: %d of %d chunks missing (first: %v)",
			ErrIncompleteUpload, len(missing), sess.TotalChunks, preview)
	}

	if _, err := a.tracker.Transition(ctx, key, func(s *upload.Session) error {
		s.State = upload.StateAssembling
		return nil
	}); err != nil {
		return "", err
	}

	videoID := uuid.NewString()
	outPath := filepath.Join(a.mediaDir, videoID+strings.ToLower(filepath.Ext(sess.Filename)))

	size, err := a.concatenate(ctx, sess, outPath)
	if err != nil {
		metrics.Assemblies.WithLabelValues("error").Inc()
		a.failSession(ctx, key)
		return "", fmt.Errorf("assemble %s: %w", key, err)
	}

	title := sess.Title
	if title == "" {
		title = sess.Filename
	}
	if err := a.catalog.Create(ctx, catalog.Video{
		ID:          videoID,
		Title:       title,
		Description: sess.Description,
		Filename:    sess.Filename,
		Uploader:    uploader,
		Status:      catalog.StatusProcessing,
		SizeBytes:   size,
	}); err != nil {
		metrics.Assemblies.WithLabelValues("error").Inc()
		a.removeAssembled(outPath)
		a.failSession(ctx, key)
		return "", fmt.Errorf("register video: %w", err)
	}

	if err := a.queue.Enqueue(ctx, videoID, outPath); err != nil {
		// Queue saturation is retryable from the client's side, so roll
		// everything back except the chunks themselves.
		metrics.Assemblies.WithLabelValues("rejected").Inc()
		if derr := a.catalog.Delete(context.WithoutCancel(ctx), videoID); derr != nil {
			logger.Warn().Err(derr).Str(log.FieldVideoID, videoID).Msg("rollback catalog entry")
		}
		a.removeAssembled(outPath)
		if _, terr := a.tracker.Transition(ctx, key, func(s *upload.Session) error {
			s.State = upload.StateReceiving
			return nil
		}); terr != nil {
			logger.Warn().Err(terr).Msg("rollback session state")
		}
		if errors.Is(err, transcode.ErrQueueFull) {
			return "", err
		}
		return "", fmt.Errorf("enqueue transcode: %w", err)
	}

	if _, err := a.tracker.Transition(ctx, key, func(s *upload.Session) error {
		s.VideoID = videoID
		return nil
	}); err != nil {
		// The job is already running; the session record just loses its
		// idempotency stamp. Log and continue.
		logger.Warn().Err(err).Msg("stamp session video id")
	}

	if err := a.receiver.RemoveArtifacts(key); err != nil {
		logger.Warn().Err(err).Msg("remove chunk artifacts")
	}

	metrics.Assemblies.WithLabelValues("ok").Inc()
	logger.Info().
		Str(log.FieldVideoID, videoID).
		Int64("bytes", size).
		Int("chunks", sess.TotalChunks).
		Msg("upload assembled")
	return videoID, nil
}

// concatenate streams every chunk in index order into outPath. The output is
// built in a pending temp file and renamed into place, so the transcode
// worker never sees a partially assembled source.
func (a *Assembler) concatenate(ctx context.Context, sess *upload.Session, outPath string) (int64, error) {
	if err := os.MkdirAll(a.mediaDir, 0o750); err != nil {
		return 0, err
	}

	pending, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return 0, fmt.Errorf("create pending output: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	var total int64
	start := time.Now()
	for i := 0; i < sess.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := a.copyChunk(sess.Key, i, pending)
		if err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
		total += n
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("finalize output: %w", err)
	}

	a.logger.Debug().
		Str(log.FieldSessionKey, sess.Key).
		Int64("bytes", total).
		Dur("elapsed", time.Since(start)).
		Msg("chunks concatenated")
	return total, nil
}

func (a *Assembler) copyChunk(key string, index int, dst io.Writer) (int64, error) {
	path, err := a.receiver.ChunkPath(key, index)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

func (a *Assembler) failSession(ctx context.Context, key string) {
	if _, err := a.tracker.Transition(ctx, key, func(s *upload.Session) error {
		s.State = upload.StateFailed
		return nil
	}); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldSessionKey, key).Msg("mark session failed")
	}
}

func (a *Assembler) removeAssembled(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		a.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("remove assembled file")
	}
}
