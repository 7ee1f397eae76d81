package db

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/rating"
)

// ReplayState is the rating state of one image rebuilt from the log.
type ReplayState struct {
	Rating          rating.Rating
	ComparisonCount int
	LastComparedAt  string
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadComparisons(ctx context.Context, q queryer) ([]Comparison, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, winner_id, loser_id, was_draw, compared_at FROM comparisons ORDER BY id`)
	if err != nil {
		slog.Error("database_comparison_query_failed", "error", err)
		return nil, errors.Storage(err, "failed to query comparisons")
	}
	defer rows.Close()

	var log []Comparison
	for rows.Next() {
		var c Comparison
		var comparedAt string
		if err := rows.Scan(&c.ID, &c.WinnerID, &c.LoserID, &c.WasDraw, &comparedAt); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Storage(err, "failed to scan comparison")
		}
		c.ComparedAt = parseTime(comparedAt)
		log = append(log, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage(err, "rows error")
	}
	return log, nil
}

// Replay applies the log in order, starting every image from the default
// rating. Opponents are replayed too, so each update sees exactly the ratings
// it saw when it was first recorded.
func Replay(model *rating.Model, log []Comparison) map[int64]*ReplayState {
	states := make(map[int64]*ReplayState)
	get := func(id int64) *ReplayState {
		st, ok := states[id]
		if !ok {
			st = &ReplayState{Rating: rating.Default()}
			states[id] = st
		}
		return st
	}

	for _, c := range log {
		w, l := get(c.WinnerID), get(c.LoserID)
		if c.WasDraw {
			w.Rating, l.Rating = model.UpdateDraw(w.Rating, l.Rating)
		} else {
			w.Rating, l.Rating = model.Update(w.Rating, l.Rating)
		}
		stamp := formatTime(c.ComparedAt)
		w.ComparisonCount++
		l.ComparisonCount++
		w.LastComparedAt = stamp
		l.LastComparedAt = stamp
	}
	return states
}

// recomputeTx writes the replayed state of ids back to the images table.
// Images with no remaining comparisons return to the default rating.
func (r *Repository) recomputeTx(ctx context.Context, tx *sql.Tx, ids []int64) error {
	log, err := loadComparisons(ctx, tx)
	if err != nil {
		return err
	}
	states := Replay(r.model, log)

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE images SET mu = ?, sigma = ?, comparison_count = ?, last_compared_at = ? WHERE id = ?`)
	if err != nil {
		slog.Error("database_prepare_failed", "error", err)
		return errors.Storage(err, "failed to prepare rating update")
	}
	defer stmt.Close()

	for _, id := range ids {
		st, ok := states[id]
		if !ok {
			st = &ReplayState{Rating: rating.Default()}
		}
		var last any
		if st.LastComparedAt != "" {
			last = st.LastComparedAt
		}
		if _, err := stmt.ExecContext(ctx, st.Rating.Mu, st.Rating.Sigma, st.ComparisonCount, last, id); err != nil {
			slog.Error("database_update_failed", "image_id", id, "error", err)
			return errors.Storage(err, "failed to write recomputed rating")
		}
	}

	slog.Info("database_ratings_recomputed", "image_count", len(ids), "replayed_comparisons", len(log))
	return nil
}
