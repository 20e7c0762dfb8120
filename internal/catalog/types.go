// SPDX-License-Identifier: MIT

// Package catalog is the queryable list of videos polled by clients.
package catalog

import (
	"errors"
	"time"
)

// Status is the client-visible processing state of a video.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Video is one catalog entry.
type Video struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Filename    string   `json:"filename"`
	Uploader    string   `json:"uploader"`
	Status      Status   `json:"status"`
	Qualities   []string `json:"qualities"`
	HLSURL      string   `json:"hlsUrl,omitempty"`

	Views           int64 `json:"views"`
	Likes           int64 `json:"likes"`
	DurationSeconds int   `json:"duration"`
	Width           int   `json:"width,omitempty"`
	Height          int   `json:"height,omitempty"`
	SizeBytes       int64 `json:"fileSize,omitempty"`

	CreatedAt   time.Time  `json:"uploadedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

var (
	// ErrNotFound marks a lookup for an unknown video ID.
	ErrNotFound = errors.New("video not found")

	// ErrForbidden marks a metadata update by someone other than the uploader.
	ErrForbidden = errors.New("caller is not the uploader")
)
