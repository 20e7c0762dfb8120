// SPDX-License-Identifier: MIT

// Package upload tracks chunked upload sessions and persists in-flight
// chunk artifacts until the assembler consumes them.
package upload

import (
	"errors"
	"time"
)

// State is the lifecycle phase of an upload session.
type State string

const (
	StateInitialized State = "initialized"
	StateReceiving   State = "receiving"
	StateAssembling  State = "assembling"
	StateFailed      State = "failed"
)

// Session is the server-side bookkeeping for one in-flight chunked upload,
// keyed by the sanitized filename.
type Session struct {
	Key         string       `json:"key"`
	Filename    string       `json:"filename"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	TotalSize   int64        `json:"totalSize"`
	TotalChunks int          `json:"totalChunks"`
	Received    map[int]bool `json:"received"`
	State       State        `json:"state"`

	// VideoID is set exactly once when the assembler consumes the session.
	// A non-empty value makes Complete idempotent under retry.
	VideoID string `json:"videoId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReceivedCount reports how many distinct chunk indices have arrived.
func (s *Session) ReceivedCount() int {
	return len(s.Received)
}

// Complete reports whether every declared chunk index has been received.
func (s *Session) Complete() bool {
	return s.TotalChunks > 0 && len(s.Received) == s.TotalChunks
}

// MissingChunks returns the sorted indices not yet received. Used for
// diagnostics in the completion error path.
func (s *Session) MissingChunks() []int {
	var missing []int
	for i := 0; i < s.TotalChunks; i++ {
		if !s.Received[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

var (
	// ErrInvalidArgument marks malformed init or chunk parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownSession marks a chunk or completion call for a session that
	// was never initialized (strict mode only).
	ErrUnknownSession = errors.New("unknown upload session")

	// ErrStorageFull marks a rejected write due to disk pressure. Clients
	// may retry the same chunk later.
	ErrStorageFull = errors.New("storage full")

	// ErrFileTooLarge marks an init whose declared size exceeds the limit.
	ErrFileTooLarge = errors.New("file too large")
)
