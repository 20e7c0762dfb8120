// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/streamloft/vodhub/internal/fsutil"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/metrics"
)

// Progress is the ack returned for a stored chunk.
type Progress struct {
	ChunkIndex  int     `json:"chunkIndex"`
	Received    int     `json:"received"`
	TotalChunks int     `json:"totalChunks"`
	Percent     float64 `json:"progress"`
}

// Receiver persists individual chunk payloads and reports receipt to the
// session tracker. Chunks for one session may arrive concurrently on
// different connections; each index writes to its own file so no cross-index
// coordination is needed.
type Receiver struct {
	tracker     *Tracker
	minDiskFree int64
	log         zerolog.Logger
}

// NewReceiver wires a Receiver to the tracker.
func NewReceiver(tracker *Tracker, minDiskFree int64) *Receiver {
	return &Receiver{
		tracker:     tracker,
		minDiskFree: minDiskFree,
		log:         log.WithComponent("chunks"),
	}
}

// ChunkFileName is the on-disk name for a chunk index. Fixed-width so a
// directory listing sorts in assembly order.
func ChunkFileName(index int) string {
	return fmt.Sprintf("%06d.chunk", index)
}

// StoreChunk persists one chunk atomically, overwriting any previous payload
// at the same index, and records receipt with the tracker. A retried chunk
// after a dropped response therefore converges instead of corrupting state.
func (r *Receiver) StoreChunk(ctx context.Context, key string, index, totalChunks int, body io.Reader) (Progress, error) {
	if index < 0 || totalChunks <= 0 || index >= totalChunks {
		return Progress{}, fmt.Errorf("%w: chunk index %d outside [0,%d)", ErrInvalidArgument, index, totalChunks)
	}

	// In strict mode reject before touching the disk.
	if r.tracker.cfg.RequireInit {
		if _, err := r.tracker.Session(ctx, key); err != nil {
			return Progress{}, err
		}
	}

	if free, err := r.tracker.disk.Free(); err == nil && free < r.minDiskFree {
		metrics.ChunkFailures.WithLabelValues("storage_full").Inc()
		return Progress{}, fmt.Errorf("%w: %d bytes free", ErrStorageFull, free)
	}

	dir, err := r.tracker.ChunkDirFor(key)
	if err != nil {
		metrics.ChunkFailures.WithLabelValues("confinement").Inc()
		return Progress{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	n, err := writeChunkFile(filepath.Join(dir, ChunkFileName(index)), body)
	if err != nil {
		metrics.ChunkFailures.WithLabelValues("io").Inc()
		return Progress{}, fmt.Errorf("store chunk %d for %s: %w", index, key, err)
	}

	sess, err := r.tracker.Record(ctx, key, index, totalChunks)
	if err != nil {
		return Progress{}, err
	}

	metrics.ChunksReceived.Inc()
	metrics.ChunkBytes.Add(float64(n))

	logger := log.WithComponentFromContext(ctx, "chunks")
	logger.Debug().
		Str(log.FieldSessionKey, key).
		Int(log.FieldChunk, index).
		Int64("bytes", n).
		Int("received", sess.ReceivedCount()).
		Msg("chunk stored")

	return Progress{
		ChunkIndex:  index,
		Received:    sess.ReceivedCount(),
		TotalChunks: sess.TotalChunks,
		Percent:     float64(sess.ReceivedCount()) / float64(sess.TotalChunks) * 100,
	}, nil
}

// writeChunkFile writes body to path with atomic-replace semantics: the
// payload lands in a pending temp file which is fsynced and renamed into
// place, so a concurrent reader never observes a torn chunk.
func writeChunkFile(path string, body io.Reader) (int64, error) {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return 0, fmt.Errorf("create pending chunk file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	n, err := io.Copy(pending, body)
	if err != nil {
		return 0, fmt.Errorf("write chunk payload: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("atomically replace chunk file: %w", err)
	}
	return n, nil
}

// ChunkPath resolves the confined path of a stored chunk. The assembler uses
// this during concatenation.
func (r *Receiver) ChunkPath(key string, index int) (string, error) {
	dir, err := fsutil.ConfineRelPath(r.tracker.cfg.ChunkDir, key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ChunkFileName(index))
	if err := fsutil.IsRegularFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// RemoveArtifacts deletes the per-session chunk directory after assembly.
func (r *Receiver) RemoveArtifacts(key string) error {
	dir, err := fsutil.ConfineRelPath(r.tracker.cfg.ChunkDir, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(dir)
}
