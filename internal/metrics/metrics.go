// Package metrics holds the prometheus collectors for a conversion run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry statuses.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusMarkdown = "markdown"
)

// Line decisions.
const (
	DecisionKept    = "kept"
	DecisionDropped = "dropped"
)

// Metrics groups the run collectors under a private registry. All methods
// are safe for concurrent use and for a nil receiver.
type Metrics struct {
	registry         *prometheus.Registry
	entries          *prometheus.CounterVec
	lines            *prometheus.CounterVec
	curationFailures prometheus.Counter
	chunkDuration    prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bamcurate_entries_total",
			Help: "Entries processed, by status.",
		}, []string{"status"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bamcurate_lines_total",
			Help: "Flattened lines seen by the redundancy filter, by decision.",
		}, []string{"decision"}),
		curationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamcurate_curation_failures_total",
			Help: "Entries whose HTML could not be curated and was used as is.",
		}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bamcurate_chunk_duration_seconds",
			Help:    "Wall time spent processing one chunk.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	m.registry.MustRegister(m.entries, m.lines, m.curationFailures, m.chunkDuration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEntry counts one processed entry.
func (m *Metrics) ObserveEntry(status string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(status).Inc()
}

// ObserveLines counts the filter's decisions for one entry.
func (m *Metrics) ObserveLines(kept, dropped int) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(DecisionKept).Add(float64(kept))
	m.lines.WithLabelValues(DecisionDropped).Add(float64(dropped))
}

// ObserveCurationFailure counts one entry that fell back to its raw HTML.
func (m *Metrics) ObserveCurationFailure() {
	if m == nil {
		return
	}
	m.curationFailures.Inc()
}

// ObserveChunk records how long a chunk took.
func (m *Metrics) ObserveChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.chunkDuration.Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
