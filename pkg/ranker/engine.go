// Package ranker is the public face of a ranking project: it scans folders
// into the store, hands out comparison pairs, records and undoes decisions,
// and reports statistics and exports.
package ranker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/metrics"
	"github.com/pixelsort/imgrank/pkg/pairing"
	"github.com/pixelsort/imgrank/pkg/scanner"
	"github.com/pixelsort/imgrank/pkg/security"
)

// Options configure an Engine.
type Options struct {
	DBPath      string
	PoolSize    int
	MaxAttempts int
	Rand        *rand.Rand
	Metrics     *metrics.RankerMetrics
	Validator   *security.Validator
	// Exists reports whether an image file is still on disk.
	// Defaults to scanner.FileExists.
	Exists func(path string) bool
}

// Engine orchestrates one ranking project.
type Engine struct {
	repo      *db.Repository
	selector  *pairing.Selector
	metrics   *metrics.RankerMetrics
	validator *security.Validator
	exists    func(path string) bool
	sessionID string

	mu                 sync.Mutex
	sessionComparisons int
}

// ScanResult reports the outcome of a folder scan. Existing counts the images
// that were already in the store before the scan; Total is the store size after it.
type ScanResult struct {
	Added    int
	Existing int
	Total    int
}

// UndoResult describes an undone comparison.
type UndoResult struct {
	WinnerID int64
	LoserID  int64
	WasDraw  bool
}

// RescanResult reports a rescan of every known folder.
type RescanResult struct {
	Folders int
	Added   int
	Removed int
	// Failed holds folders that could not be scanned; the rescan continues past them.
	Failed map[string]error
}

// New opens the project store at opts.DBPath.
func New(opts Options) (*Engine, error) {
	repo, err := db.NewRepository(opts.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ranking store")
	}

	exists := opts.Exists
	if exists == nil {
		exists = scanner.FileExists
	}
	validator := opts.Validator
	if validator == nil {
		validator = security.NewValidator(0, 0, 0)
	}

	e := &Engine{
		repo:      repo,
		metrics:   opts.Metrics,
		validator: validator,
		exists:    exists,
		sessionID: uuid.New().String(),
	}
	e.selector = pairing.NewSelector(repo, pairing.Options{
		PoolSize:    opts.PoolSize,
		MaxAttempts: opts.MaxAttempts,
		Rand:        opts.Rand,
		Exists:      exists,
	})

	slog.Info("ranker_engine_ready", "db_path", opts.DBPath, "session_id", e.sessionID)
	return e, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	slog.Info("ranker_engine_close", "session_id", e.sessionID, "session_comparisons", e.SessionComparisons())
	return e.repo.Close()
}

// Repository exposes the underlying store for read-only callers.
func (e *Engine) Repository() *db.Repository {
	return e.repo
}

// SessionID identifies this engine instance in logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// SessionComparisons returns the comparisons recorded since the session started,
// net of undos.
func (e *Engine) SessionComparisons() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionComparisons
}

// Scan discovers images under folder and adds the ones not yet in the store.
// A missing folder is an error and nothing is inserted.
func (e *Engine) Scan(ctx context.Context, folder string, recursive bool) (ScanResult, error) {
	found, err := scanner.Scan(ctx, folder, recursive)
	if err != nil {
		return ScanResult{}, err
	}

	up, err := e.repo.UpsertImages(ctx, found.Paths)
	if err != nil {
		return ScanResult{}, err
	}
	total, _, err := e.repo.Counts(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	res := ScanResult{Added: up.Added, Existing: total - up.Added, Total: total}
	e.metrics.RecordScan(up.Added, up.Existing)
	slog.Info("ranker_scan_complete",
		"folder", folder,
		"added", res.Added,
		"existing", res.Existing,
		"total", res.Total)
	return res, nil
}

// PickPair returns the next pair to compare, or ErrNoPairAvailable.
func (e *Engine) PickPair(ctx context.Context) (*pairing.Pair, error) {
	pair, err := e.selector.Pick(ctx)
	switch {
	case err == nil:
		e.metrics.RecordPick(metrics.PickSelected)
		return &pair, nil
	case errors.Is(err, errors.ErrNoPairAvailable):
		e.metrics.RecordPick(metrics.PickUnavailable)
	default:
		e.metrics.RecordPick(metrics.PickError)
	}
	return nil, err
}

// RecordComparison stores a decision. For a draw the order of the ids does
// not matter. Unknown ids yield ErrNotFound and change nothing.
func (e *Engine) RecordComparison(ctx context.Context, winnerID, loserID int64, isDraw bool) error {
	if _, err := e.repo.ApplyComparison(ctx, winnerID, loserID, isDraw); err != nil {
		return err
	}

	e.mu.Lock()
	e.sessionComparisons++
	e.mu.Unlock()

	e.metrics.RecordComparison(isDraw)
	return nil
}

// UndoLastComparison reverts the most recent comparison and lets its pair be
// offered again. It returns nil when there is nothing to undo.
func (e *Engine) UndoLastComparison(ctx context.Context) (*UndoResult, error) {
	start := time.Now()
	c, err := e.repo.UndoLastComparison(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		slog.Info("ranker_nothing_to_undo", "session_id", e.sessionID)
		return nil, nil
	}
	e.metrics.RecordReplayDuration(time.Since(start).Seconds())

	e.selector.Forget(c.WinnerID, c.LoserID)

	e.mu.Lock()
	if e.sessionComparisons > 0 {
		e.sessionComparisons--
	}
	e.mu.Unlock()

	e.metrics.RecordUndo()
	slog.Info("ranker_comparison_undone", "winner_id", c.WinnerID, "loser_id", c.LoserID, "was_draw", c.WasDraw)
	return &UndoResult{WinnerID: c.WinnerID, LoserID: c.LoserID, WasDraw: c.WasDraw}, nil
}

// RemoveMissingImages drops images whose files are gone, along with their
// comparisons, and returns how many images were removed.
func (e *Engine) RemoveMissingImages(ctx context.Context) (int, error) {
	start := time.Now()
	res, err := e.repo.RemoveMissing(ctx, e.exists)
	if err != nil {
		return 0, err
	}
	if res.Comparisons > 0 {
		e.metrics.RecordReplayDuration(time.Since(start).Seconds())
	}
	e.metrics.RecordRemoved(res.Images)
	if res.Images > 0 {
		slog.Info("ranker_missing_removed", "images", res.Images, "comparisons", res.Comparisons)
	}
	return res.Images, nil
}

// ClearSession forgets which pairs were shown. Stored data is untouched.
func (e *Engine) ClearSession() {
	e.selector.Reset()
	slog.Info("ranker_session_cleared", "session_id", e.sessionID)
}

// ClearAll deletes every image and comparison and clears the session.
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.repo.ClearAll(ctx); err != nil {
		return err
	}
	e.selector.Reset()

	e.mu.Lock()
	e.sessionComparisons = 0
	e.mu.Unlock()
	return nil
}

// Folders returns the directories that contain ranked images.
func (e *Engine) Folders(ctx context.Context) ([]string, error) {
	return e.repo.Folders(ctx)
}

// Rescan scans every known folder again and then removes missing images.
func (e *Engine) Rescan(ctx context.Context) (*RescanResult, error) {
	folders, err := e.repo.Folders(ctx)
	if err != nil {
		return nil, err
	}

	res := &RescanResult{Folders: len(folders), Failed: make(map[string]error)}
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sr, err := e.Scan(ctx, folder, true)
		if err != nil {
			slog.Warn("ranker_rescan_folder_failed", "folder", folder, "error", err)
			res.Failed[folder] = err
			continue
		}
		res.Added += sr.Added
	}

	removed, err := e.RemoveMissingImages(ctx)
	if err != nil {
		return res, err
	}
	res.Removed = removed

	slog.Info("ranker_rescan_complete", "folders", res.Folders, "added", res.Added, "removed", res.Removed, "failed", len(res.Failed))
	return res, nil
}
