package ranker

import (
	"context"
	"math"

	"github.com/pixelsort/imgrank/pkg/rating"
)

// Coverage targets, in comparisons per image.
const (
	basicTarget     = 0.5
	confidentTarget = 2.0
	highTarget      = 3.0
)

// Stats is a snapshot of ranking progress. Sigma and mu figures cover only
// images with at least one comparison and fall back to the defaults when
// there are none.
type Stats struct {
	TotalImages      int
	ComparedImages   int
	UncomparedImages int
	TotalComparisons int

	AvgComparisonsPerImage float64

	ZeroComparisons int
	OneToThree      int
	FourToTen       int
	OverTen         int

	AvgSigma float64
	MinSigma float64
	MaxSigma float64
	AvgMu    float64
	MinMu    float64
	MaxMu    float64

	// TopOrdinal is the best mu - 3*sigma among compared images, 0 when none.
	TopOrdinal float64

	StabilityPercent float64

	BasicProgressPercent     float64
	ConfidentProgressPercent float64

	ComparisonsForBasic          int
	ComparisonsForConfident      int
	ComparisonsForHighConfidence int

	SessionPairsShown  int
	SessionComparisons int
}

// Stats computes the current ranking statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	a, err := e.repo.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		TotalImages:      a.TotalImages,
		ComparedImages:   a.ComparedImages,
		UncomparedImages: a.TotalImages - a.ComparedImages,
		TotalComparisons: a.TotalComparisons,

		ZeroComparisons: a.ZeroComparisons,
		OneToThree:      a.OneToThree,
		FourToTen:       a.FourToTen,
		OverTen:         a.OverTen,

		AvgSigma:   orDefault(a.AvgSigma, rating.DefaultSigma),
		MinSigma:   orDefault(a.MinSigma, rating.DefaultSigma),
		MaxSigma:   orDefault(a.MaxSigma, rating.DefaultSigma),
		AvgMu:      orDefault(a.AvgMu, rating.DefaultMu),
		MinMu:      orDefault(a.MinMu, rating.DefaultMu),
		MaxMu:      orDefault(a.MaxMu, rating.DefaultMu),
		TopOrdinal: orDefault(a.TopOrdinal, 0),

		SessionPairsShown:  e.selector.Shown().Len(),
		SessionComparisons: e.SessionComparisons(),
	}

	total := float64(a.TotalImages)
	comparisons := a.TotalComparisons
	if a.TotalImages > 0 {
		s.AvgComparisonsPerImage = float64(comparisons) * 2 / total
		s.BasicProgressPercent = math.Min(100, float64(comparisons)/(total*basicTarget)*100)
		s.ConfidentProgressPercent = math.Min(100, float64(comparisons)/(total*confidentTarget)*100)
	}

	s.StabilityPercent = math.Max(0, math.Min(100, 100*(1-s.AvgSigma/rating.DefaultSigma)))

	s.ComparisonsForBasic = remaining(total*basicTarget, comparisons)
	s.ComparisonsForConfident = remaining(total*confidentTarget, comparisons)
	s.ComparisonsForHighConfidence = remaining(total*highTarget, comparisons)

	return s, nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func remaining(target float64, done int) int {
	n := int(target) - done
	if n < 0 {
		return 0
	}
	return n
}
