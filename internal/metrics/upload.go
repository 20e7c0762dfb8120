// SPDX-License-Identifier: MIT

// Package metrics defines the prometheus instrumentation for vodhub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksReceived tracks accepted upload chunks.
	ChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodhub_upload_chunks_received_total",
		Help: "Total upload chunks accepted",
	})

	// ChunkBytes tracks bytes written to chunk storage.
	ChunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodhub_upload_chunk_bytes_total",
		Help: "Total bytes written to chunk storage",
	})

	// ChunkFailures tracks rejected or failed chunk writes.
	ChunkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodhub_upload_chunk_failures_total",
		Help: "Total failed chunk stores",
	}, []string{"reason"})

	// SessionsSwept tracks abandoned sessions reclaimed by the sweeper.
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodhub_upload_sessions_swept_total",
		Help: "Total abandoned upload sessions reclaimed",
	})

	// Assemblies tracks completed chunk assemblies by outcome.
	Assemblies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodhub_assemblies_total",
		Help: "Total assembly attempts by outcome",
	}, []string{"outcome"})
)
