// Package metrics provides ranking engine metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values
const (
	OutcomeDecisive = "decisive"
	OutcomeDraw     = "draw"

	PickSelected    = "selected"
	PickUnavailable = "unavailable"
	PickError       = "error"

	ExportWritten = "written"
	ExportSkipped = "skipped"
	ExportFailed  = "failed"

	ScanAdded    = "added"
	ScanExisting = "existing"
)

// RankerMetrics contains Prometheus metrics for the ranking engine
type RankerMetrics struct {
	registry *prometheus.Registry

	comparisonsRecordedTotal *prometheus.CounterVec
	undoTotal                prometheus.Counter
	pairsPickedTotal         *prometheus.CounterVec
	exportFilesTotal         *prometheus.CounterVec
	scanImagesTotal          *prometheus.CounterVec
	imagesRemovedTotal       prometheus.Counter
	replayDurationSeconds    prometheus.Histogram
}

// NewRankerMetrics creates and registers new ranking engine metrics
func NewRankerMetrics(registry *prometheus.Registry) (*RankerMetrics, error) {
	m := &RankerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RankerMetrics) initMetrics() {
	m.comparisonsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrank_comparisons_recorded_total",
			Help: "Total number of comparisons recorded",
		},
		[]string{"outcome"}, // decisive, draw
	)

	m.undoTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgrank_undo_total",
		Help: "Total number of comparisons undone",
	})

	m.pairsPickedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrank_pairs_picked_total",
			Help: "Total number of pair selections by result",
		},
		[]string{"result"}, // selected, unavailable, error
	)

	m.exportFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrank_export_files_total",
			Help: "Total number of files handled by top-N exports",
		},
		[]string{"status"}, // written, skipped, failed
	)

	m.scanImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrank_scan_images_total",
			Help: "Total number of images seen by folder scans",
		},
		[]string{"result"}, // added, existing
	)

	m.imagesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgrank_images_removed_total",
		Help: "Total number of image records removed because their file went missing",
	})

	m.replayDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imgrank_replay_duration_seconds",
		Help:    "Time taken to recompute ratings from the comparison log",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	})
}

// Describe implements the Collector interface
func (m *RankerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.comparisonsRecordedTotal.Describe(ch)
	m.undoTotal.Describe(ch)
	m.pairsPickedTotal.Describe(ch)
	m.exportFilesTotal.Describe(ch)
	m.scanImagesTotal.Describe(ch)
	m.imagesRemovedTotal.Describe(ch)
	m.replayDurationSeconds.Describe(ch)
}

// Collect implements the Collector interface
func (m *RankerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.comparisonsRecordedTotal.Collect(ch)
	m.undoTotal.Collect(ch)
	m.pairsPickedTotal.Collect(ch)
	m.exportFilesTotal.Collect(ch)
	m.scanImagesTotal.Collect(ch)
	m.imagesRemovedTotal.Collect(ch)
	m.replayDurationSeconds.Collect(ch)
}

// RecordComparison counts a recorded comparison.
func (m *RankerMetrics) RecordComparison(draw bool) {
	if m == nil {
		return
	}
	outcome := OutcomeDecisive
	if draw {
		outcome = OutcomeDraw
	}
	m.comparisonsRecordedTotal.WithLabelValues(outcome).Inc()
}

// RecordUndo counts an undone comparison.
func (m *RankerMetrics) RecordUndo() {
	if m == nil {
		return
	}
	m.undoTotal.Inc()
}

// RecordPick counts a pair selection attempt.
func (m *RankerMetrics) RecordPick(result string) {
	if m == nil {
		return
	}
	m.pairsPickedTotal.WithLabelValues(result).Inc()
}

// RecordExportFile counts one file handled by a top-N export.
func (m *RankerMetrics) RecordExportFile(status string) {
	if m == nil {
		return
	}
	m.exportFilesTotal.WithLabelValues(status).Inc()
}

// RecordScan counts images seen by a scan.
func (m *RankerMetrics) RecordScan(added, existing int) {
	if m == nil {
		return
	}
	m.scanImagesTotal.WithLabelValues(ScanAdded).Add(float64(added))
	m.scanImagesTotal.WithLabelValues(ScanExisting).Add(float64(existing))
}

// RecordRemoved counts image records dropped for missing files.
func (m *RankerMetrics) RecordRemoved(n int) {
	if m == nil {
		return
	}
	m.imagesRemovedTotal.Add(float64(n))
}

// RecordReplayDuration observes a rating recomputation.
func (m *RankerMetrics) RecordReplayDuration(seconds float64) {
	if m == nil {
		return
	}
	m.replayDurationSeconds.Observe(seconds)
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *RankerMetrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
