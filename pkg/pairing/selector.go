// Package pairing chooses which two images to compare next.
//
// Selection is a two-stage weighted random draw over a bounded pool of the
// most uncertain, least compared images: the first image is weighted by
// uncertainty and low coverage, the second by uncertainty and closeness in
// skill to the first. Pairs already shown in the current session are skipped.
package pairing

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
)

// Defaults for the selector.
const (
	DefaultPoolSize    = 500
	DefaultMaxAttempts = 20
	fallbackAttempts   = 10
)

// Source supplies candidate images, ordered by uncertainty.
type Source interface {
	Candidates(ctx context.Context, limit int) ([]*db.Image, error)
}

// Pair is two distinct images to compare.
type Pair struct {
	Left  *db.Image
	Right *db.Image
}

// Key returns the unordered identity of the pair.
func (p Pair) Key() PairKey {
	return NewPairKey(p.Left.ID, p.Right.ID)
}

// Selector picks comparison pairs. It is safe for concurrent use.
type Selector struct {
	source      Source
	exists      func(path string) bool
	poolSize    int
	maxAttempts int
	shown       *ShownPairs

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Options configure a Selector. Zero values select the defaults.
type Options struct {
	PoolSize    int
	MaxAttempts int
	Rand        *rand.Rand
	Exists      func(path string) bool
}

// NewSelector creates a selector over source.
func NewSelector(source Source, opts Options) *Selector {
	s := &Selector{
		source:      source,
		exists:      opts.Exists,
		poolSize:    opts.PoolSize,
		maxAttempts: opts.MaxAttempts,
		rng:         opts.Rand,
		shown:       NewShownPairs(),
	}
	if s.poolSize <= 0 {
		s.poolSize = DefaultPoolSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if s.exists == nil {
		s.exists = func(string) bool { return true }
	}
	return s
}

// Shown returns the session shown-pairs set.
func (s *Selector) Shown() *ShownPairs {
	return s.shown
}

// Pick chooses the next pair and records it as shown. It returns
// ErrNoPairAvailable when fewer than two eligible images exist or no valid
// pair could be found.
func (s *Selector) Pick(ctx context.Context) (Pair, error) {
	pool, err := s.source.Candidates(ctx, s.poolSize)
	if err != nil {
		return Pair{}, errors.Wrap(err, "failed to load candidates")
	}
	if len(pool) < 2 {
		slog.Info("pairing_pool_too_small", "pool_size", len(pool))
		return Pair{}, errors.ErrNoPairAvailable
	}

	// Existence checks are cached per call; only the two drawn files are
	// checked on each attempt.
	checked := make(map[int64]bool)
	exists := func(img *db.Image) bool {
		ok, seen := checked[img.ID]
		if !seen {
			ok = s.exists(img.Filepath)
			checked[img.ID] = ok
		}
		return ok
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Pair{}, err
		}
		if len(pool) < 2 {
			break
		}

		first := pool[s.weightedIndex(firstWeights(pool))]
		rest := without(pool, first.ID)
		second := rest[s.weightedIndex(secondWeights(rest, first))]

		key := NewPairKey(first.ID, second.ID)
		if s.shown.Contains(key) {
			continue
		}

		firstOK, secondOK := exists(first), exists(second)
		if firstOK && secondOK {
			if !s.shown.Add(key) {
				// Lost a race with a concurrent Pick for the same pair.
				continue
			}
			slog.Debug("pairing_pair_selected", "left_id", first.ID, "right_id", second.ID, "attempt", attempt+1)
			return Pair{Left: first, Right: second}, nil
		}
		if !firstOK {
			slog.Warn("pairing_missing_file", "image_id", first.ID, "filepath", first.Filepath)
			pool = without(pool, first.ID)
		}
		if !secondOK {
			slog.Warn("pairing_missing_file", "image_id", second.ID, "filepath", second.Filepath)
			pool = without(pool, second.ID)
		}
	}

	// Fallback: uniform sampling among the images still in the pool, unseen
	// pairs first, then any pair of existing files.
	for _, allowShown := range []bool{false, true} {
		for i := 0; i < fallbackAttempts && len(pool) >= 2; i++ {
			a, b := s.sampleTwo(len(pool))
			first, second := pool[a], pool[b]
			key := NewPairKey(first.ID, second.ID)
			if !allowShown && s.shown.Contains(key) {
				continue
			}
			if exists(first) && exists(second) {
				s.shown.Add(key)
				slog.Info("pairing_fallback_pair", "left_id", first.ID, "right_id", second.ID, "repeat", allowShown)
				return Pair{Left: first, Right: second}, nil
			}
		}
	}

	slog.Info("pairing_no_pair_available", "pool_size", len(pool))
	return Pair{}, errors.ErrNoPairAvailable
}

// Forget removes a pair from the shown set so it can be offered again.
func (s *Selector) Forget(a, b int64) {
	s.shown.Remove(NewPairKey(a, b))
}

// Reset clears the session shown-pairs set.
func (s *Selector) Reset() {
	s.shown.Clear()
}

// firstWeights favours uncertain and rarely compared images.
func firstWeights(pool []*db.Image) []float64 {
	w := make([]float64, len(pool))
	for i, img := range pool {
		w[i] = img.Sigma * (1 + 1/float64(img.ComparisonCount+1))
	}
	return w
}

// secondWeights favours uncertain images close in skill to first.
func secondWeights(candidates []*db.Image, first *db.Image) []float64 {
	w := make([]float64, len(candidates))
	for i, img := range candidates {
		w[i] = img.Sigma * (1 / (math.Abs(img.Mu-first.Mu) + 1))
	}
	return w
}

// weightedIndex draws an index with probability proportional to its weight.
// When every weight is zero the draw is uniform.
func (s *Selector) weightedIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}

	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	if total <= 0 {
		return s.rng.Intn(len(weights))
	}
	target := s.rng.Float64() * total
	for i, w := range weights {
		target -= w
		if target < 0 {
			return i
		}
	}
	return len(weights) - 1
}

func (s *Selector) sampleTwo(n int) (int, int) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	a := s.rng.Intn(n)
	b := s.rng.Intn(n - 1)
	if b >= a {
		b++
	}
	return a, b
}

func without(pool []*db.Image, id int64) []*db.Image {
	out := make([]*db.Image, 0, len(pool))
	for _, img := range pool {
		if img.ID != id {
			out = append(out, img)
		}
	}
	return out
}
