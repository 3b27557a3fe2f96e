// Package metrics exposes the Prometheus instrumentation of the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostingsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobwatch_postings_fetched_total",
			Help: "Total number of postings fetched from Hacker News",
		},
		[]string{"thread"},
	)

	PostingsNew = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobwatch_postings_new_total",
			Help: "Total number of previously unseen postings",
		},
		[]string{"thread"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobwatch_notifications_sent_total",
			Help: "Total number of notifications handed to a channel",
		},
		[]string{"channel"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobwatch_notification_failures_total",
			Help: "Total number of notifications a channel failed to deliver",
		},
		[]string{"channel"},
	)

	SyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobwatch_sync_failures_total",
			Help: "Total number of failed sync runs",
		},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobwatch_sync_duration_seconds",
			Help:    "Time taken by one sync run",
			Buckets: prometheus.DefBuckets,
		},
	)

	FilterParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobwatch_filter_parse_errors_total",
			Help: "Total number of filter expressions that did not parse",
		},
	)
)
