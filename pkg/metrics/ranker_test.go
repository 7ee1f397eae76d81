package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordComparison(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRankerMetrics(registry)
	require.NoError(t, err)

	m.RecordComparison(false)
	m.RecordComparison(false)
	m.RecordComparison(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.comparisonsRecordedTotal.WithLabelValues(OutcomeDecisive)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.comparisonsRecordedTotal.WithLabelValues(OutcomeDraw)))
}

func TestRecordScanAndExport(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRankerMetrics(registry)
	require.NoError(t, err)

	m.RecordScan(3, 2)
	m.RecordExportFile(ExportWritten)
	m.RecordExportFile(ExportSkipped)
	m.RecordRemoved(4)
	m.RecordUndo()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.scanImagesTotal.WithLabelValues(ScanAdded)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.scanImagesTotal.WithLabelValues(ScanExisting)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.exportFilesTotal.WithLabelValues(ExportWritten)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.exportFilesTotal.WithLabelValues(ExportSkipped)))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.imagesRemovedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.undoTotal))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *RankerMetrics
	assert.NotPanics(t, func() {
		m.RecordComparison(true)
		m.RecordUndo()
		m.RecordPick(PickSelected)
		m.RecordExportFile(ExportFailed)
		m.RecordScan(1, 1)
		m.RecordRemoved(1)
		m.RecordReplayDuration(0.1)
	})
	assert.NoError(t, m.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewRankerMetrics(registry)
	require.NoError(t, err)
	_, err = NewRankerMetrics(registry)
	assert.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewRankerMetrics(registry)
	require.NoError(t, err)
	m.RecordPick(PickSelected)

	path := filepath.Join(t.TempDir(), "imgrank.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `imgrank_pairs_picked_total{result="selected"} 1`))
}
