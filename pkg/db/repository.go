package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/rating"
	_ "modernc.org/sqlite"
)

// Repository is the durable store of images and the comparison log.
// Mutations hold the write lock and run in a single transaction, so two rating
// updates can never interleave.
type Repository struct {
	db    *sql.DB
	path  string
	model *rating.Model
	now   func() time.Time

	mu sync.RWMutex
}

// NewRepository opens (or creates) the project database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Storage(err, "failed to open database")
	}

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Storage(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{
		db:    db,
		path:  dbPath,
		model: rating.NewModel(),
		now:   time.Now,
	}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// Model returns the rating model used for updates and replays.
func (r *Repository) Model() *rating.Model {
	return r.model
}

// UpsertImages inserts rows for previously unseen paths. Paths already in the
// store are left untouched.
func (r *Repository) UpsertImages(ctx context.Context, paths []string) (UpsertResult, error) {
	slog.Info("database_upsert_images", "path_count", len(paths))

	r.mu.Lock()
	defer r.mu.Unlock()

	var res UpsertResult
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return res, errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO images (filepath, filename, mu, sigma, comparison_count, added_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		slog.Error("database_prepare_failed", "error", err)
		return res, errors.Storage(err, "failed to prepare insert")
	}
	defer stmt.Close()

	def := rating.Default()
	addedAt := formatTime(r.now())
	for _, p := range paths {
		result, err := stmt.ExecContext(ctx, p, filepath.Base(p), def.Mu, def.Sigma, addedAt)
		if err != nil {
			slog.Error("database_insert_failed", "filepath", p, "error", err)
			return UpsertResult{}, errors.Storage(err, "failed to insert image")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return UpsertResult{}, errors.Storage(err, "failed to get rows affected")
		}
		if n > 0 {
			res.Added++
		} else {
			res.Existing++
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return UpsertResult{}, errors.Storage(err, "failed to commit transaction")
	}

	slog.Info("database_images_upserted", "added", res.Added, "existing", res.Existing)
	return res, nil
}

const imageColumns = `id, filepath, filename, mu, sigma, comparison_count, added_at, last_compared_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	var addedAt string
	var lastCompared sql.NullString

	if err := row.Scan(&img.ID, &img.Filepath, &img.Filename, &img.Mu, &img.Sigma,
		&img.ComparisonCount, &addedAt, &lastCompared); err != nil {
		return nil, err
	}

	img.AddedAt = parseTime(addedAt)
	if lastCompared.Valid {
		t := parseTime(lastCompared.String)
		img.LastComparedAt = &t
	}
	return &img, nil
}

// Get retrieves an image by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	img, err := scanImage(r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		slog.Debug("database_image_not_found", "image_id", id)
		return nil, errors.NotFound("image", id)
	}
	if err != nil {
		slog.Error("database_query_failed", "image_id", id, "error", err)
		return nil, errors.Storage(err, "failed to query image")
	}
	return img, nil
}

// List returns every image, best first for the chosen key. Unknown keys fall
// back to ordinal.
func (r *Repository) List(ctx context.Context, orderBy OrderBy) ([]*Image, error) {
	clause, ok := orderClauses[orderBy]
	if !ok {
		clause = orderClauses[OrderByOrdinal]
	}
	return r.queryImages(ctx, "database_list_images",
		`SELECT `+imageColumns+` FROM images ORDER BY `+clause)
}

// Top returns the n best images by ordinal.
func (r *Repository) Top(ctx context.Context, n int) ([]*Image, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.queryImages(ctx, "database_top_images",
		`SELECT `+imageColumns+` FROM images ORDER BY `+orderClauses[OrderByOrdinal]+` LIMIT ?`, n)
}

// Candidates returns up to limit images, most uncertain and least compared
// first, with random tie-breaking.
func (r *Repository) Candidates(ctx context.Context, limit int) ([]*Image, error) {
	return r.queryImages(ctx, "database_candidate_images",
		`SELECT `+imageColumns+` FROM images ORDER BY sigma DESC, comparison_count ASC, RANDOM() LIMIT ?`, limit)
}

func (r *Repository) queryImages(ctx context.Context, event, query string, args ...any) ([]*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error(event+"_failed", "error", err)
		return nil, errors.Storage(err, "failed to list images")
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Storage(err, "failed to scan row")
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Storage(err, "rows error")
	}

	slog.Debug(event, "image_count", len(images))
	return images, nil
}

// ApplyComparison records one comparison: it appends the log row, updates both
// ratings through the model, increments both counts and stamps
// last_compared_at, all in one transaction.
func (r *Repository) ApplyComparison(ctx context.Context, winnerID, loserID int64, wasDraw bool) (*Comparison, error) {
	if winnerID == loserID {
		return nil, errors.Wrap(errors.ErrInvalidComparison, fmt.Sprintf("image %d compared with itself", winnerID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return nil, errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	winner, err := ratingTx(ctx, tx, winnerID)
	if err != nil {
		return nil, err
	}
	loser, err := ratingTx(ctx, tx, loserID)
	if err != nil {
		return nil, err
	}

	newWinner, newLoser := r.apply(winner, loser, wasDraw)
	comparedAt := r.now()
	stamp := formatTime(comparedAt)

	update := `UPDATE images SET mu = ?, sigma = ?, comparison_count = comparison_count + 1, last_compared_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, newWinner.Mu, newWinner.Sigma, stamp, winnerID); err != nil {
		slog.Error("database_update_failed", "image_id", winnerID, "error", err)
		return nil, errors.Storage(err, "failed to update winner")
	}
	if _, err := tx.ExecContext(ctx, update, newLoser.Mu, newLoser.Sigma, stamp, loserID); err != nil {
		slog.Error("database_update_failed", "image_id", loserID, "error", err)
		return nil, errors.Storage(err, "failed to update loser")
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO comparisons (winner_id, loser_id, was_draw, compared_at) VALUES (?, ?, ?, ?)`,
		winnerID, loserID, wasDraw, stamp)
	if err != nil {
		slog.Error("database_insert_failed", "winner_id", winnerID, "loser_id", loserID, "error", err)
		return nil, errors.Storage(err, "failed to insert comparison")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Storage(err, "failed to get last insert id")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return nil, errors.Storage(err, "failed to commit transaction")
	}

	slog.Info("database_comparison_recorded",
		"comparison_id", id,
		"winner_id", winnerID,
		"loser_id", loserID,
		"was_draw", wasDraw,
		"winner_mu", newWinner.Mu,
		"loser_mu", newLoser.Mu)

	return &Comparison{
		ID:         id,
		WinnerID:   winnerID,
		LoserID:    loserID,
		WasDraw:    wasDraw,
		ComparedAt: parseTime(stamp),
	}, nil
}

func (r *Repository) apply(winner, loser rating.Rating, wasDraw bool) (rating.Rating, rating.Rating) {
	if wasDraw {
		return r.model.UpdateDraw(winner, loser)
	}
	return r.model.Update(winner, loser)
}

func ratingTx(ctx context.Context, tx *sql.Tx, id int64) (rating.Rating, error) {
	var rt rating.Rating
	err := tx.QueryRowContext(ctx, `SELECT mu, sigma FROM images WHERE id = ?`, id).Scan(&rt.Mu, &rt.Sigma)
	if err == sql.ErrNoRows {
		slog.Info("database_image_not_found", "image_id", id)
		return rt, errors.NotFound("image", id)
	}
	if err != nil {
		slog.Error("database_query_failed", "image_id", id, "error", err)
		return rt, errors.Storage(err, "failed to query rating")
	}
	return rt, nil
}

// DeleteLastComparison removes the most recent log row without touching
// ratings. It returns nil when the log is empty.
func (r *Repository) DeleteLastComparison(ctx context.Context) (*Comparison, error) {
	return r.popLast(ctx, false)
}

// UndoLastComparison removes the most recent log row and recomputes both
// participants in the same transaction. It returns nil when the log is empty.
func (r *Repository) UndoLastComparison(ctx context.Context) (*Comparison, error) {
	return r.popLast(ctx, true)
}

func (r *Repository) popLast(ctx context.Context, recompute bool) (*Comparison, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return nil, errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var c Comparison
	var comparedAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, winner_id, loser_id, was_draw, compared_at FROM comparisons ORDER BY id DESC LIMIT 1`).
		Scan(&c.ID, &c.WinnerID, &c.LoserID, &c.WasDraw, &comparedAt)
	if err == sql.ErrNoRows {
		slog.Info("database_nothing_to_undo")
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "error", err)
		return nil, errors.Storage(err, "failed to query last comparison")
	}
	c.ComparedAt = parseTime(comparedAt)

	if _, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE id = ?`, c.ID); err != nil {
		slog.Error("database_delete_failed", "comparison_id", c.ID, "error", err)
		return nil, errors.Storage(err, "failed to delete comparison")
	}

	if recompute {
		if err := r.recomputeTx(ctx, tx, []int64{c.WinnerID, c.LoserID}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return nil, errors.Storage(err, "failed to commit transaction")
	}

	slog.Info("database_comparison_deleted", "comparison_id", c.ID, "winner_id", c.WinnerID, "loser_id", c.LoserID, "recomputed", recompute)
	return &c, nil
}

// RecomputeRatingsFor rebuilds mu, sigma, comparison_count and
// last_compared_at of the given images by replaying the comparison log.
func (r *Repository) RecomputeRatingsFor(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := r.recomputeTx(ctx, tx, ids); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return errors.Storage(err, "failed to commit transaction")
	}
	return nil
}

// RemoveMissing deletes images whose file fails the exists predicate together
// with every comparison that references them, then replays the remaining log
// so surviving opponents stay consistent with it.
func (r *Repository) RemoveMissing(ctx context.Context, exists func(path string) bool) (RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res RemoveResult

	rows, err := r.db.QueryContext(ctx, `SELECT id, filepath FROM images ORDER BY id`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return res, errors.Storage(err, "failed to list images")
	}
	var missing, remaining []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return res, errors.Storage(err, "failed to scan row")
		}
		if exists(path) {
			remaining = append(remaining, id)
		} else {
			missing = append(missing, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, errors.Storage(err, "rows error")
	}
	rows.Close()

	if len(missing) == 0 {
		return res, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return res, errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, id := range missing {
		result, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE winner_id = ? OR loser_id = ?`, id, id)
		if err != nil {
			slog.Error("database_delete_failed", "image_id", id, "error", err)
			return RemoveResult{}, errors.Storage(err, "failed to delete comparisons")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return RemoveResult{}, errors.Storage(err, "failed to get rows affected")
		}
		res.Comparisons += int(n)

		if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id); err != nil {
			slog.Error("database_delete_failed", "image_id", id, "error", err)
			return RemoveResult{}, errors.Storage(err, "failed to delete image")
		}
		res.Images++
	}

	if res.Comparisons > 0 {
		if err := r.recomputeTx(ctx, tx, remaining); err != nil {
			return RemoveResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return RemoveResult{}, errors.Storage(err, "failed to commit transaction")
	}

	slog.Info("database_missing_removed", "images", res.Images, "comparisons", res.Comparisons)
	return res, nil
}

// Counts returns the number of images and comparisons.
func (r *Repository) Counts(ctx context.Context) (images, comparisons int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	err = r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM images), (SELECT COUNT(*) FROM comparisons)`).
		Scan(&images, &comparisons)
	if err != nil {
		slog.Error("database_count_failed", "error", err)
		return 0, 0, errors.Storage(err, "failed to count rows")
	}
	return images, comparisons, nil
}

// Aggregate computes the figures used by ranking statistics.
func (r *Repository) Aggregate(ctx context.Context) (*Aggregates, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var a Aggregates
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(comparison_count > 0), 0),
			COALESCE(SUM(comparison_count = 0), 0),
			COALESCE(SUM(comparison_count BETWEEN 1 AND 3), 0),
			COALESCE(SUM(comparison_count BETWEEN 4 AND 10), 0),
			COALESCE(SUM(comparison_count > 10), 0)
		FROM images
	`).Scan(&a.TotalImages, &a.ComparedImages, &a.ZeroComparisons, &a.OneToThree, &a.FourToTen, &a.OverTen)
	if err != nil {
		slog.Error("database_aggregate_failed", "error", err)
		return nil, errors.Storage(err, "failed to aggregate images")
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comparisons`).Scan(&a.TotalComparisons); err != nil {
		slog.Error("database_aggregate_failed", "error", err)
		return nil, errors.Storage(err, "failed to count comparisons")
	}

	var avgSigma, minSigma, maxSigma, avgMu, minMu, maxMu, topOrdinal sql.NullFloat64
	err = r.db.QueryRowContext(ctx, `
		SELECT AVG(sigma), MIN(sigma), MAX(sigma), AVG(mu), MIN(mu), MAX(mu), MAX(mu - 3 * sigma)
		FROM images WHERE comparison_count > 0
	`).Scan(&avgSigma, &minSigma, &maxSigma, &avgMu, &minMu, &maxMu, &topOrdinal)
	if err != nil {
		slog.Error("database_aggregate_failed", "error", err)
		return nil, errors.Storage(err, "failed to aggregate ratings")
	}
	a.AvgSigma = nullFloat(avgSigma)
	a.MinSigma = nullFloat(minSigma)
	a.MaxSigma = nullFloat(maxSigma)
	a.AvgMu = nullFloat(avgMu)
	a.MinMu = nullFloat(minMu)
	a.MaxMu = nullFloat(maxMu)
	a.TopOrdinal = nullFloat(topOrdinal)

	return &a, nil
}

// Comparisons returns the full log in recording order.
func (r *Repository) Comparisons(ctx context.Context) ([]Comparison, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return loadComparisons(ctx, r.db)
}

// Folders returns the distinct parent directories of all stored images.
func (r *Repository) Folders(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT filepath FROM images`)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Storage(err, "failed to list filepaths")
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Storage(err, "failed to scan row")
		}
		seen[filepath.Dir(p)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage(err, "rows error")
	}

	folders := make([]string, 0, len(seen))
	for f := range seen {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders, nil
}

// ClearAll deletes every image and comparison. Id sequences are kept so ids
// are not reused.
func (r *Repository) ClearAll(ctx context.Context) error {
	slog.Info("database_clear_all", "db_path", r.path)

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return errors.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, table := range []string{"comparisons", "images"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			slog.Error("database_delete_failed", "table", table, "error", err)
			return errors.Storage(err, "failed to clear "+table)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return errors.Storage(err, "failed to commit transaction")
	}

	slog.Info("database_cleared", "db_path", r.path)
	return nil
}

// Backup writes a consistent copy of the database to dst, which must not exist.
func (r *Repository) Backup(ctx context.Context, dst string) error {
	slog.Info("database_backup", "db_path", r.path, "dest", dst)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		slog.Error("database_backup_failed", "dest", dst, "error", err)
		return errors.Storage(err, "failed to back up database")
	}
	return nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use SQLite's CURRENT_TIMESTAMP format.
		t, err = time.Parse("2006-01-02 15:04:05", strings.TrimSpace(s))
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
