// Package metrics provides Prometheus metrics for index builds, volume selection and queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Build metrics
	BuildsTotal   *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	BuildFiles    *prometheus.CounterVec
	IndexNodes    *prometheus.GaugeVec

	// Volume selection metrics
	VolumeScoringCalls  prometheus.Counter
	VolumeParseFailures prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QuerySources  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.BuildsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebook_index_builds_total",
			Help: "Total number of index builds",
		},
		[]string{"kind", "status"},
	)

	m.BuildDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rulebook_index_build_duration_seconds",
			Help:    "Duration of index builds in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	m.BuildFiles = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebook_index_build_files_total",
			Help: "Files seen by index builds, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.IndexNodes = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rulebook_index_nodes",
			Help: "Number of nodes in the most recently built index",
		},
		[]string{"kind"},
	)

	m.VolumeScoringCalls = f.NewCounter(
		prometheus.CounterOpts{
			Name: "rulebook_volume_scoring_calls_total",
			Help: "Total number of LLM volume scoring calls",
		},
	)

	m.VolumeParseFailures = f.NewCounter(
		prometheus.CounterOpts{
			Name: "rulebook_volume_score_parse_failures_total",
			Help: "Volume scoring responses without a parsable number",
		},
	)

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebook_queries_total",
			Help: "Total number of queries",
		},
		[]string{"kind", "status"},
	)

	m.QueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rulebook_query_duration_seconds",
			Help:    "Duration of queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	m.QuerySources = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulebook_query_sources",
			Help:    "Number of source nodes returned per query after filtering",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	return m
}

// RecordBuild records a finished build. files maps outcome to count.
func (m *Metrics) RecordBuild(kind, status string, files map[string]int, nodes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(kind, status).Inc()
	m.BuildDuration.WithLabelValues(kind).Observe(duration.Seconds())
	for outcome, n := range files {
		m.BuildFiles.WithLabelValues(kind, outcome).Add(float64(n))
	}
	if status == "built" {
		m.IndexNodes.WithLabelValues(kind).Set(float64(nodes))
	}
}

// RecordVolumeScore records one scoring call and whether its response parsed.
func (m *Metrics) RecordVolumeScore(parsed bool) {
	if m == nil {
		return
	}
	m.VolumeScoringCalls.Inc()
	if !parsed {
		m.VolumeParseFailures.Inc()
	}
}

// RecordQuery records a query with its status.
func (m *Metrics) RecordQuery(kind, status string, sources int, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind, status).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if status == "ok" {
		m.QuerySources.Observe(float64(sources))
	}
}
