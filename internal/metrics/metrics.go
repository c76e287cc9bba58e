// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package metrics registers the Prometheus instrumentation for the
// adaptor. Metrics are served in text format on the dashboard port at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed push metrics

	FeedBatchesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_batches_sent_total",
			Help: "Total number of feed batches accepted by the appliance",
		},
	)

	FeedRecordsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_records_pushed_total",
			Help: "Total number of records delivered in accepted batches",
		},
	)

	FeedSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_send_failures_total",
			Help: "Total number of failed feed submissions",
		},
		[]string{"kind"}, // failed-to-connect, failed-writing, failed-reading-reply
	)

	FullPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "full_pushes_total",
			Help: "Total number of full listings by outcome",
		},
		[]string{"outcome"}, // success, interruption, failure, skipped
	)

	// Document serving metrics

	DocRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_requests_total",
			Help: "Total number of document requests",
		},
		[]string{"origin", "status"}, // origin: gsa, other
	)

	DocRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doc_request_duration_seconds",
			Help:    "Document request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"origin"},
	)

	DocBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doc_bytes_served_total",
			Help: "Total number of document content bytes written to clients",
		},
	)

	// Security metrics

	AuthnRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authn_requests_total",
			Help: "Total number of authentication exchanges by outcome",
		},
		[]string{"outcome"}, // started, succeeded, rejected
	)

	AuthzQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_queries_total",
			Help: "Total number of authorization decisions by result",
		},
		[]string{"decision"}, // Permit, Deny, Indeterminate
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Current number of live browser sessions",
		},
	)
)
