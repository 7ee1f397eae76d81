package ranker

import (
	"context"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/metrics"
	"github.com/pixelsort/imgrank/pkg/rating"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	m, err := metrics.NewRankerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e, err := New(Options{
		DBPath:  filepath.Join(t.TempDir(), "rankings.db"),
		Rand:    rand.New(rand.NewSource(7)),
		Metrics: m,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeImages creates one small file per name under dir.
func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("image:"+name), 0644))
	}
}

// byName maps filename to image.
func byName(t *testing.T, e *Engine) map[string]*db.Image {
	t.Helper()
	images, err := e.Repository().List(context.Background(), db.OrderByOrdinal)
	require.NoError(t, err)
	out := make(map[string]*db.Image, len(images))
	for _, img := range images {
		out[img.Filename] = img
	}
	return out
}

// rankFive scans five images and records a full round robin where the
// alphabetically earlier image always wins, giving distinct ordinals.
func rankFive(t *testing.T, e *Engine, dir string) []string {
	t.Helper()
	names := []string{"a.png", "b.jpg", "c.gif", "d.bmp", "e.webp"}
	writeImages(t, dir, names...)
	ctx := context.Background()
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	imgs := byName(t, e)
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			require.NoError(t, e.RecordComparison(ctx, imgs[names[i]].ID, imgs[names[j]].ID, false))
		}
	}
	return names
}

func TestScan_Counts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.JPG", "notes.txt")

	res, err := e.Scan(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Added: 2, Existing: 0, Total: 2}, res)

	writeImages(t, dir, "c.webp")
	res, err = e.Scan(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Added: 1, Existing: 2, Total: 3}, res)

	for _, img := range byName(t, e) {
		assert.Equal(t, rating.DefaultMu, img.Mu)
		assert.Equal(t, rating.DefaultSigma, img.Sigma)
		assert.Equal(t, 0, img.ComparisonCount)
		assert.True(t, filepath.IsAbs(img.Filepath))
	}
}

func TestScan_MissingFolder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Scan(ctx, filepath.Join(t.TempDir(), "missing"), true)
	require.Error(t, err)

	images, comparisons, err := e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, images)
	assert.Zero(t, comparisons)
}

func TestBasicFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	imgs := byName(t, e)
	a, b := imgs["a.png"], imgs["b.png"]

	require.NoError(t, e.RecordComparison(ctx, a.ID, b.ID, false))
	imgs = byName(t, e)
	a2, b2 := imgs["a.png"], imgs["b.png"]
	assert.Greater(t, a2.Mu, a.Mu)
	assert.Less(t, b2.Mu, b.Mu)
	assert.Less(t, a2.Sigma, a.Sigma)
	assert.Less(t, b2.Sigma, b.Sigma)
	assert.Equal(t, 1, a2.ComparisonCount)
	assert.Equal(t, 1, b2.ComparisonCount)
	assert.Equal(t, 1, e.SessionComparisons())

	_, comparisons, err := e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, comparisons)

	undo, err := e.UndoLastComparison(ctx)
	require.NoError(t, err)
	require.NotNil(t, undo)
	assert.Equal(t, UndoResult{WinnerID: a.ID, LoserID: b.ID}, *undo)

	imgs = byName(t, e)
	for _, img := range imgs {
		assert.Equal(t, rating.DefaultMu, img.Mu)
		assert.Equal(t, rating.DefaultSigma, img.Sigma)
		assert.Equal(t, 0, img.ComparisonCount)
		assert.Nil(t, img.LastComparedAt)
	}
	_, comparisons, err = e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, comparisons)
	assert.Zero(t, e.SessionComparisons())
}

func TestDraw(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	imgs := byName(t, e)
	require.NoError(t, e.RecordComparison(ctx, imgs["a.png"].ID, imgs["b.png"].ID, true))

	for _, img := range byName(t, e) {
		assert.InDelta(t, rating.DefaultMu, img.Mu, 1e-6)
		assert.Less(t, img.Sigma, rating.DefaultSigma)
		assert.Equal(t, 1, img.ComparisonCount)
	}
}

func TestRecordComparison_NotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)
	a := byName(t, e)["a.png"]

	err = e.RecordComparison(ctx, a.ID, 9999, false)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Zero(t, e.SessionComparisons())

	after := byName(t, e)["a.png"]
	assert.Equal(t, a.Mu, after.Mu)
	assert.Equal(t, 0, after.ComparisonCount)

	err = e.RecordComparison(ctx, a.ID, a.ID, false)
	assert.ErrorIs(t, err, errors.ErrInvalidComparison)
}

func TestUndo_NothingToUndo(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.UndoLastComparison(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestUndo_EvictsPairFromSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.png", "c.png", "d.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	pair, err := e.PickPair(ctx)
	require.NoError(t, err)
	require.True(t, e.selector.Shown().Contains(pair.Key()))

	require.NoError(t, e.RecordComparison(ctx, pair.Left.ID, pair.Right.ID, false))
	_, err = e.UndoLastComparison(ctx)
	require.NoError(t, err)

	assert.False(t, e.selector.Shown().Contains(pair.Key()))
}

func TestPickPair_NoPair(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "only.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	pair, err := e.PickPair(ctx)
	assert.Nil(t, pair)
	assert.ErrorIs(t, err, errors.ErrNoPairAvailable)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.TotalImages)
	assert.Equal(t, rating.DefaultSigma, s.AvgSigma)
	assert.Equal(t, rating.DefaultMu, s.AvgMu)
	assert.Zero(t, s.StabilityPercent)
	assert.Zero(t, s.AvgComparisonsPerImage)

	rankFive(t, e, t.TempDir())
	s, err = e.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, s.TotalImages)
	assert.Equal(t, 5, s.ComparedImages)
	assert.Zero(t, s.UncomparedImages)
	assert.Equal(t, 10, s.TotalComparisons)
	assert.InDelta(t, 4.0, s.AvgComparisonsPerImage, 1e-9)
	assert.Equal(t, 0, s.ZeroComparisons)
	assert.Equal(t, 5, s.FourToTen)
	assert.Less(t, s.AvgSigma, rating.DefaultSigma)
	assert.LessOrEqual(t, s.MinSigma, s.MaxSigma)
	assert.LessOrEqual(t, s.MinMu, s.MaxMu)
	assert.Greater(t, s.StabilityPercent, 0.0)
	assert.LessOrEqual(t, s.StabilityPercent, 100.0)

	// 5 images: basic 2, confident 10, high 15
	assert.Equal(t, 0, s.ComparisonsForBasic)
	assert.Equal(t, 0, s.ComparisonsForConfident)
	assert.Equal(t, 5, s.ComparisonsForHighConfidence)
	assert.Equal(t, 100.0, s.BasicProgressPercent)
	assert.Equal(t, 100.0, s.ConfidentProgressPercent)
	assert.Equal(t, 10, s.SessionComparisons)

	top, err := e.Repository().Top(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, top[0].Ordinal(), s.TopOrdinal, 1e-9)
}

func TestExportTop_Copy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rankFive(t, e, filepath.Join(t.TempDir(), "src"))

	top, err := e.Repository().Top(ctx, 3)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out")
	res, err := e.ExportTop(ctx, 3, dest, Copy)
	require.NoError(t, err)
	require.Len(t, res.Written, 3)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		want := []string{"0001_", "0002_", "0003_"}[i] + top[i].Filename
		assert.Equal(t, want, entry.Name())

		data, err := os.ReadFile(filepath.Join(dest, entry.Name()))
		require.NoError(t, err)
		assert.Equal(t, "image:"+top[i].Filename, string(data))
	}
	assert.Equal(t, "0001_a.png", entries[0].Name())
}

func TestExportTop_Symlink(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rankFive(t, e, filepath.Join(t.TempDir(), "src"))

	dest := t.TempDir()
	res, err := e.ExportTop(ctx, 2, dest, Symlink)
	require.NoError(t, err)
	require.Len(t, res.Written, 2)

	target, err := os.Readlink(res.Written[0])
	require.NoError(t, err)
	assert.Equal(t, byName(t, e)["a.png"].Filepath, target)
}

func TestExportTop_SkipsMissing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rankFive(t, e, filepath.Join(t.TempDir(), "src"))

	best := byName(t, e)["a.png"]
	require.NoError(t, os.Remove(best.Filepath))

	dest := t.TempDir()
	res, err := e.ExportTop(ctx, 3, dest, Copy)
	require.NoError(t, err)
	assert.Equal(t, []string{best.Filepath}, res.Skipped)
	require.Len(t, res.Written, 2)
	assert.Equal(t, "0002_b.jpg", filepath.Base(res.Written[0]))
	assert.Equal(t, "0003_c.gif", filepath.Base(res.Written[1]))
}

func TestExportTop_PartialFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rankFive(t, e, filepath.Join(t.TempDir(), "src"))

	dest := t.TempDir()
	// A directory in the way makes the first copy fail.
	require.NoError(t, os.Mkdir(filepath.Join(dest, "0001_a.png"), 0755))

	res, err := e.ExportTop(ctx, 3, dest, Copy)
	require.Error(t, err)

	var partial *errors.ExportPartialFailure
	require.True(t, errors.As(err, &partial))
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, byName(t, e)["a.png"].Filepath, partial.Failures[0].Source)
	assert.Len(t, partial.Written, 2)
	assert.Equal(t, res.Written, partial.Written)
}

func TestExportTop_Cancelled(t *testing.T) {
	e := newTestEngine(t)
	rankFive(t, e, filepath.Join(t.TempDir(), "src"))

	ctx, cancel := context.WithCancel(context.Background())
	top, err := e.Repository().Top(ctx, 5)
	require.NoError(t, err)
	cancel()

	dest := t.TempDir()
	res, err := e.ExportImages(ctx, top, dest, Copy)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Written)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, len(res.Written))
}

func TestExportRankings_CSV(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.png")
	_, err := e.Scan(ctx, dir, false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rankings.csv")
	n, err := e.ExportRankings(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "rank,filename,filepath,mu,sigma,ordinal,comparisons", strings.Join(rows[0], ","))
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "25.000", rows[1][3])
	assert.Equal(t, "8.333", rows[1][4])
	assert.Equal(t, "0.000", rows[1][5])
	assert.Equal(t, "0", rows[1][6])
	assert.Equal(t, "2", rows[2][0])
}

func TestRemoveMissingAndRescan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "src")
	rankFive(t, e, dir)

	gone := byName(t, e)["e.webp"]
	require.NoError(t, os.Remove(gone.Filepath))
	writeImages(t, dir, "f.png")

	res, err := e.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Folders)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Removed)
	assert.Empty(t, res.Failed)

	images, comparisons, err := e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, images)
	assert.Equal(t, 6, comparisons)

	removed, err := e.RemoveMissingImages(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	folders, err := e.Folders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, folders)
}

func TestClearSessionAndClearAll(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rankFive(t, e, t.TempDir())

	_, err := e.PickPair(ctx)
	require.NoError(t, err)
	e.ClearSession()
	assert.Zero(t, e.selector.Shown().Len())

	images, _, err := e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, images)

	require.NoError(t, e.ClearAll(ctx))
	images, comparisons, err := e.Repository().Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, images)
	assert.Zero(t, comparisons)
	assert.Zero(t, e.SessionComparisons())
}

func TestParseExportMode(t *testing.T) {
	m, err := ParseExportMode("symlink")
	require.NoError(t, err)
	assert.Equal(t, Symlink, m)

	m, err = ParseExportMode("copy")
	require.NoError(t, err)
	assert.Equal(t, Copy, m)

	_, err = ParseExportMode("move")
	assert.Error(t, err)
}
