package db

import (
	"os"
	"time"

	"github.com/pixelsort/imgrank/pkg/rating"
)

// Schema defines the SQLite schema of one ranking project.
// images holds the current rating state of every scanned file; comparisons is
// the append-only log that rating state is derived from. Ids are AUTOINCREMENT
// so they are never reused, even after undo or a full clear.
const Schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filepath TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    mu REAL NOT NULL DEFAULT 25.0,
    sigma REAL NOT NULL DEFAULT 8.333333333333334 CHECK (sigma >= 0),
    comparison_count INTEGER NOT NULL DEFAULT 0 CHECK (comparison_count >= 0),
    added_at TEXT NOT NULL,
    last_compared_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_images_ordinal ON images((mu - 3 * sigma) DESC);
CREATE INDEX IF NOT EXISTS idx_images_uncertainty ON images(sigma DESC, comparison_count ASC);

CREATE TABLE IF NOT EXISTS comparisons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    winner_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    loser_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    was_draw INTEGER NOT NULL DEFAULT 0,
    compared_at TEXT NOT NULL,
    CHECK (winner_id <> loser_id)
);

CREATE INDEX IF NOT EXISTS idx_comparisons_winner ON comparisons(winner_id);
CREATE INDEX IF NOT EXISTS idx_comparisons_loser ON comparisons(loser_id);
`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OrderBy selects the sort key of List. Every order is descending.
type OrderBy string

// Sort keys
const (
	OrderByOrdinal         OrderBy = "ordinal"
	OrderByMu              OrderBy = "mu"
	OrderBySigma           OrderBy = "sigma"
	OrderByComparisonCount OrderBy = "comparison_count"
	OrderByAddedAt         OrderBy = "added_at"
)

var orderClauses = map[OrderBy]string{
	OrderByOrdinal:         "(mu - 3 * sigma) DESC, id ASC",
	OrderByMu:              "mu DESC, id ASC",
	OrderBySigma:           "sigma DESC, id ASC",
	OrderByComparisonCount: "comparison_count DESC, id ASC",
	OrderByAddedAt:         "added_at DESC, id ASC",
}

// Image is one ranked file.
type Image struct {
	ID              int64
	Filepath        string
	Filename        string
	Mu              float64
	Sigma           float64
	ComparisonCount int
	AddedAt         time.Time
	LastComparedAt  *time.Time
}

// Rating returns the image's current skill estimate.
func (i *Image) Rating() rating.Rating {
	return rating.Rating{Mu: i.Mu, Sigma: i.Sigma}
}

// Ordinal is mu - 3*sigma, the ranking key.
func (i *Image) Ordinal() float64 {
	return i.Rating().Ordinal()
}

// Exists reports whether the backing file is still on disk.
func (i *Image) Exists() bool {
	_, err := os.Stat(i.Filepath)
	return err == nil
}

// Comparison is one entry of the comparison log. For draws the winner/loser
// ids are an unordered pair.
type Comparison struct {
	ID         int64
	WinnerID   int64
	LoserID    int64
	WasDraw    bool
	ComparedAt time.Time
}

// UpsertResult counts the outcome of UpsertImages.
type UpsertResult struct {
	Added    int
	Existing int
}

// RemoveResult counts the rows deleted by RemoveMissing.
type RemoveResult struct {
	Images      int
	Comparisons int
}

// Aggregates are the SQL-side figures behind ranking statistics.
// Sigma/Mu/TopOrdinal fields only consider images with at least one comparison
// and are nil when there are none.
type Aggregates struct {
	TotalImages      int
	ComparedImages   int
	TotalComparisons int

	ZeroComparisons int
	OneToThree      int
	FourToTen       int
	OverTen         int

	AvgSigma   *float64
	MinSigma   *float64
	MaxSigma   *float64
	AvgMu      *float64
	MinMu      *float64
	MaxMu      *float64
	TopOrdinal *float64
}
