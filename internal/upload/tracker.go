// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamloft/vodhub/internal/fsutil"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/metrics"
)

// TrackerConfig controls session admission policy.
type TrackerConfig struct {
	// RequireInit rejects chunks for sessions that were never initialized.
	// The reference web client never checks the init response, so lenient
	// deployments may disable this and have the first chunk create the
	// session implicitly.
	RequireInit bool

	// MaxFileSize bounds the declared total upload size.
	MaxFileSize int64

	// MinDiskFree is the free-space floor below which inits are refused.
	MinDiskFree int64

	// ChunkDir is where chunk artifacts live; the sweeper removes the
	// per-session subdirectory when it retires an abandoned session.
	ChunkDir string
}

// Tracker owns the lifecycle of upload sessions.
type Tracker struct {
	store *Store
	cfg   TrackerConfig
	disk  *diskGauge
	log   zerolog.Logger
}

// NewTracker wires a Tracker over the given session store.
func NewTracker(store *Store, cfg TrackerConfig) *Tracker {
	return &Tracker{
		store: store,
		cfg:   cfg,
		disk:  newDiskGauge(cfg.ChunkDir),
		log:   log.WithComponent("upload"),
	}
}

// Init creates or resets the session for filename. Re-initializing an
// existing key discards prior state so client-side init retries are safe.
func (t *Tracker) Init(ctx context.Context, filename, title, description string, totalSize int64, totalChunks int) (*Session, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: totalSize must be positive, got %d", ErrInvalidArgument, totalSize)
	}
	if totalChunks <= 0 {
		return nil, fmt.Errorf("%w: totalChunks must be positive, got %d", ErrInvalidArgument, totalChunks)
	}
	key := fsutil.SanitizeFilename(filename)
	if key == "" {
		return nil, fmt.Errorf("%w: filename %q sanitizes to empty", ErrInvalidArgument, filename)
	}
	if t.cfg.MaxFileSize > 0 && totalSize > t.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, totalSize, t.cfg.MaxFileSize)
	}

	t.disk.Invalidate() // admitting a multi-GB upload warrants a fresh probe
	if free, err := t.disk.Free(); err == nil && free < totalSize+t.cfg.MinDiskFree {
		return nil, fmt.Errorf("%w: %d bytes free, need %d", ErrStorageFull, free, totalSize+t.cfg.MinDiskFree)
	}

	now := time.Now().UTC()
	sess := &Session{
		Key:         key,
		Filename:    filename,
		Title:       title,
		Description: description,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		Received:    make(map[int]bool),
		State:       StateInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	t.log.Info().
		Str(log.FieldSessionKey, key).
		Int64("total_size", totalSize).
		Int("total_chunks", totalChunks).
		Msg("upload session initialized")
	return sess, nil
}

// Record marks a chunk index as received. Duplicate deliveries of the same
// index are idempotent and never double-count.
func (t *Tracker) Record(ctx context.Context, key string, index, totalChunks int) (*Session, error) {
	sess, err := t.store.Update(ctx, key, func(s *Session) error {
		if index < 0 || index >= s.TotalChunks {
			return fmt.Errorf("%w: chunk index %d outside [0,%d)", ErrInvalidArgument, index, s.TotalChunks)
		}
		if s.Received == nil {
			s.Received = make(map[int]bool)
		}
		s.Received[index] = true
		if s.State == StateInitialized {
			s.State = StateReceiving
		}
		return nil
	})
	if errors.Is(err, ErrUnknownSession) && !t.cfg.RequireInit {
		return t.recordLenient(ctx, key, index, totalChunks)
	}
	return sess, err
}

// recordLenient default-creates a session on first chunk arrival. The size
// is unknown at this point; completion still verifies the chunk count.
func (t *Tracker) recordLenient(ctx context.Context, key string, index, totalChunks int) (*Session, error) {
	if totalChunks <= 0 || index < 0 || index >= totalChunks {
		return nil, fmt.Errorf("%w: chunk index %d outside [0,%d)", ErrInvalidArgument, index, totalChunks)
	}
	now := time.Now().UTC()
	sess := &Session{
		Key:         key,
		Filename:    key,
		TotalChunks: totalChunks,
		Received:    map[int]bool{index: true},
		State:       StateReceiving,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	t.log.Debug().
		Str(log.FieldSessionKey, key).
		Int(log.FieldChunk, index).
		Msg("session created lazily on first chunk")
	return sess, nil
}

// Session loads the session for key.
func (t *Tracker) Session(ctx context.Context, key string) (*Session, error) {
	return t.store.Get(ctx, key)
}

// IsComplete reports whether every declared chunk has been received.
func (t *Tracker) IsComplete(ctx context.Context, key string) (bool, error) {
	sess, err := t.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return sess.Complete(), nil
}

// Transition applies fn to the session, persisting the change atomically.
// The assembler uses this for the Assembling transition and VideoID stamp.
func (t *Tracker) Transition(ctx context.Context, key string, fn func(*Session) error) (*Session, error) {
	return t.store.Update(ctx, key, fn)
}

// Retire removes the session record once the assembler has consumed it, or
// when an upload is abandoned.
func (t *Tracker) Retire(ctx context.Context, key string) error {
	return t.store.Delete(ctx, key)
}

// Sweep reclaims sessions idle for longer than ttl together with their chunk
// artifacts. Sessions already consumed by the assembler (VideoID set) are
// retired regardless of age. Returns the number of sessions removed.
func (t *Tracker) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	var stale []string
	err := t.store.Each(ctx, func(s *Session) error {
		if s.UpdatedAt.Before(cutoff) {
			stale = append(stale, s.Key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		dir, err := fsutil.ConfineRelPath(t.cfg.ChunkDir, key)
		if err == nil {
			if err := os.RemoveAll(dir); err != nil {
				t.log.Warn().Err(err).Str(log.FieldSessionKey, key).Msg("sweep: remove chunk dir")
				continue
			}
		} else if !os.IsNotExist(err) {
			// Confinement failure on a stored key should not happen; skip
			// the artifacts but still drop the record.
			t.log.Warn().Err(err).Str(log.FieldSessionKey, key).Msg("sweep: confine chunk dir")
		}
		if err := t.store.Delete(ctx, key); err != nil {
			t.log.Warn().Err(err).Str(log.FieldSessionKey, key).Msg("sweep: delete session")
			continue
		}
		removed++
		metrics.SessionsSwept.Inc()
	}
	if removed > 0 {
		t.log.Info().Int("removed", removed).Msg("swept abandoned upload sessions")
	}
	return removed, nil
}

// ChunkDirFor returns the confined per-session chunk directory, creating it
// if needed.
func (t *Tracker) ChunkDirFor(key string) (string, error) {
	if err := os.MkdirAll(t.cfg.ChunkDir, 0o750); err != nil {
		return "", err
	}
	dir, err := fsutil.ConfineRelPath(t.cfg.ChunkDir, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}
