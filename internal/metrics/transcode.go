// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscodeJobs tracks finished transcode jobs by outcome.
	TranscodeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodhub_transcode_jobs_total",
		Help: "Total transcode jobs by outcome",
	}, []string{"outcome"})

	// TranscodeDuration tracks wall-clock duration of transcode jobs.
	TranscodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vodhub_transcode_duration_seconds",
		Help:    "Duration of transcode jobs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
	})

	// TranscodeQueueDepth tracks jobs waiting for a worker.
	TranscodeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodhub_transcode_queue_depth",
		Help: "Transcode jobs queued and not yet started",
	})

	// TranscodeRejected tracks jobs refused because the queue was saturated.
	TranscodeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodhub_transcode_rejected_total",
		Help: "Transcode jobs rejected due to queue saturation",
	})
)
