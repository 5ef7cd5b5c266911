package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedsync"

const (
	OutcomeSuccess     = "success"
	OutcomeNotModified = "not_modified"
	OutcomeAuth        = "auth_required"
	OutcomeError       = "error"
)

var (
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetches_total",
		Help:      "Streams opened by protocol handlers, by scheme and outcome.",
	}, []string{"scheme", "outcome"})

	SyncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_requests_total",
		Help:      "Batch mutation requests sent to the aggregation service.",
	}, []string{"outcome"})

	SyncedItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synced_items_total",
		Help:      "Items acknowledged by the aggregation service.",
	})

	PendingSyncItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_sync_items",
		Help:      "Items held in the durable store awaiting acknowledgment.",
	})

	TokenRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reader_token_refreshes_total",
		Help:      "Forced reader token refreshes after a rejected request.",
	})
)
