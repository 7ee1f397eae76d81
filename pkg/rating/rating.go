// Package rating implements the Plackett-Luce skill update used to rank images.
// A rating is a (mu, sigma) pair: mu is the estimated preference strength and
// sigma its uncertainty. Updates are pure and deterministic so that replaying
// the comparison log reproduces stored ratings exactly.
package rating

import (
	"fmt"
	"math"
)

// Default model parameters (OpenSkill defaults).
const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
	DefaultBeta  = DefaultSigma / 2
	DefaultKappa = 0.0001
	DefaultTau   = DefaultMu / 300
)

// Rating is a skill estimate.
type Rating struct {
	Mu    float64
	Sigma float64
}

// Default returns the rating assigned to a freshly scanned image.
func Default() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma}
}

// Ordinal is the conservative skill estimate used as the ranking key.
func (r Rating) Ordinal() float64 {
	return r.Mu - 3*r.Sigma
}

// Model holds the Plackett-Luce parameters.
type Model struct {
	Beta  float64 // performance variance per participant
	Kappa float64 // lower bound for the sigma shrink factor
	Tau   float64 // additive dynamics applied before each update
}

// NewModel returns a model with the default parameters.
func NewModel() *Model {
	return &Model{Beta: DefaultBeta, Kappa: DefaultKappa, Tau: DefaultTau}
}

// Update rates a decisive comparison and returns the new winner and loser ratings.
func (m *Model) Update(winner, loser Rating) (Rating, Rating) {
	out := m.rate([2]Rating{winner, loser}, [2]int{0, 1})
	return out[0], out[1]
}

// UpdateDraw rates a tie.
func (m *Model) UpdateDraw(a, b Rating) (Rating, Rating) {
	out := m.rate([2]Rating{a, b}, [2]int{0, 0})
	return out[0], out[1]
}

// rate is the Plackett-Luce update specialised to two single-player teams.
// Lower rank means better placement; equal ranks are a draw.
func (m *Model) rate(teams [2]Rating, ranks [2]int) [2]Rating {
	for _, r := range teams {
		mustValid(r)
	}

	// Additive dynamics widen sigma before the observation; the result is
	// limited below so a recorded comparison never increases uncertainty.
	var prior [2]Rating
	for i, r := range teams {
		prior[i] = Rating{Mu: r.Mu, Sigma: math.Sqrt(r.Sigma*r.Sigma + m.Tau*m.Tau)}
	}

	var c float64
	for _, r := range prior {
		c += r.Sigma*r.Sigma + m.Beta*m.Beta
	}
	c = math.Sqrt(c)

	var expMu [2]float64
	for i, r := range prior {
		expMu[i] = math.Exp(r.Mu / c)
	}

	// sumQ[q] sums exp(mu/c) over teams placed at or below q; a[q] counts
	// teams sharing q's rank.
	var sumQ [2]float64
	var a [2]float64
	for q := range prior {
		for i := range prior {
			if ranks[i] >= ranks[q] {
				sumQ[q] += expMu[i]
			}
			if ranks[i] == ranks[q] {
				a[q]++
			}
		}
	}

	var out [2]Rating
	for i, r := range prior {
		sigmaSq := r.Sigma * r.Sigma
		var omega, delta float64
		for q := range prior {
			if ranks[q] > ranks[i] {
				continue
			}
			p := expMu[i] / sumQ[q]
			delta += p * (1 - p) / a[q]
			if q == i {
				omega += (1 - p) / a[q]
			} else {
				omega -= p / a[q]
			}
		}
		omega *= sigmaSq / c
		gamma := r.Sigma / c
		delta *= gamma * sigmaSq / (c * c)

		mu := r.Mu + omega
		sigma := r.Sigma * math.Sqrt(math.Max(1-delta, m.Kappa))
		if sigma > teams[i].Sigma {
			sigma = teams[i].Sigma
		}
		out[i] = Rating{Mu: mu, Sigma: sigma}
	}
	return out
}

// mustValid panics on ratings that can only come from a broken invariant.
func mustValid(r Rating) {
	if math.IsNaN(r.Mu) || math.IsInf(r.Mu, 0) {
		panic(fmt.Sprintf("rating: invalid mu %v", r.Mu))
	}
	if math.IsNaN(r.Sigma) || math.IsInf(r.Sigma, 0) || r.Sigma < 0 {
		panic(fmt.Sprintf("rating: invalid sigma %v", r.Sigma))
	}
}
