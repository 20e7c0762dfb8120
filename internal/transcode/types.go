// SPDX-License-Identifier: MIT

// Package transcode runs ffmpeg HLS encodes for assembled uploads through a
// bounded worker pool and tracks per-video job state.
package transcode

import (
	"context"
	"errors"
	"time"
)

// JobStatus is the state of a transcode job. Processing is the only
// non-terminal state; Ready and Error are never left.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobReady      JobStatus = "ready"
	JobError      JobStatus = "error"
)

// Job is the unit of transcode work and its observable state. Snapshots
// returned by GetStatus are copies; only the scheduler mutates the original.
type Job struct {
	VideoID    string
	SourcePath string
	Status     JobStatus

	// Populated on Ready.
	Qualities    []string
	ManifestPath string

	// Populated on Error.
	Message string

	EnqueuedAt time.Time
	FinishedAt time.Time
}

// Runner abstracts external command execution so tests use fakes.
type Runner interface {
	// Run executes name with args and returns captured stdout. A non-zero
	// exit is an error carrying stderr context.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CatalogUpdater is the slice of the catalog the scheduler writes to.
type CatalogUpdater interface {
	SetReady(ctx context.Context, id string, qualities []string, hlsURL string, durationSeconds, width, height int) error
	SetError(ctx context.Context, id string) error
}

// ErrQueueFull is returned by Enqueue when the worker queue is saturated.
// Callers surface it as a retryable rejection, never a silent drop.
var ErrQueueFull = errors.New("transcode queue full")
