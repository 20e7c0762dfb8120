// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests tracks served HTTP requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodhub_http_requests_total",
		Help: "Total HTTP requests by method, route and status class",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodhub_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// FileRequestsDenied tracks refused HLS file requests.
	FileRequestsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodhub_file_requests_denied_total",
		Help: "HLS file requests denied by the secure file server",
	}, []string{"reason"})
)
