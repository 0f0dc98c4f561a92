package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Replica metrics
	replicaAttached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callsheet_replica_attached",
		Help: "1 while a replica has a live project subscription",
	})

	projectsVisible = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callsheet_projects_visible",
		Help: "Number of projects in the current projection",
	})

	snapshotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callsheet_snapshots_applied_total",
		Help: "Total number of store snapshots applied to the projection",
	})

	snapshotsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callsheet_snapshots_ignored_total",
		Help: "Snapshots delivered to a subscription that was already replaced",
	})

	documentsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callsheet_documents_dropped_total",
		Help: "Project documents dropped because they failed to decode",
	})

	// Write metrics
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsheet_writes_total",
		Help: "Store writes issued by the replica by operation and result",
	}, []string{"op", "result"}) // result: "ok" or "error"

	writeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callsheet_write_duration_seconds",
		Help:    "Store write latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	// Forecast metrics
	forecastRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsheet_forecast_requests_total",
		Help: "Forecast lookups by outcome",
	}, []string{"result"}) // hit, fetched, error, no_match, no_location

	forecastFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callsheet_forecast_fetch_duration_seconds",
		Help:    "Forecast provider latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// Membership metrics
	joinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callsheet_join_attempts_total",
		Help: "Join-by-code attempts by result",
	}, []string{"result"}) // joined, not_signed_in, not_found, failed
)

func observeWrite(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	writesTotal.WithLabelValues(op, result).Inc()
	writeLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}
