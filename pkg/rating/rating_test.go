package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t, 25.0, r.Mu)
	assert.Equal(t, 25.0/3, r.Sigma)
	assert.InDelta(t, 0.0, r.Ordinal(), 1e-12)
}

func TestUpdate_EqualRatingsAreSymmetric(t *testing.T) {
	m := NewModel()

	w, l := m.Update(Default(), Default())

	assert.Greater(t, w.Mu, DefaultMu)
	assert.Less(t, l.Mu, DefaultMu)
	assert.InDelta(t, w.Mu-DefaultMu, DefaultMu-l.Mu, 1e-12, "mu swing should mirror")
	assert.Equal(t, w.Sigma, l.Sigma)
}

func TestUpdate_UpsetMovesMoreThanExpectedResult(t *testing.T) {
	m := NewModel()
	strong := Rating{Mu: 32, Sigma: 5}
	weak := Rating{Mu: 18, Sigma: 5}

	expectedW, _ := m.Update(strong, weak)
	upsetW, _ := m.Update(weak, strong)

	expectedSwing := expectedW.Mu - strong.Mu
	upsetSwing := upsetW.Mu - weak.Mu
	assert.Greater(t, upsetSwing, expectedSwing)
}

func TestUpdate_SigmaNeverIncreases(t *testing.T) {
	m := NewModel()
	ratings := []Rating{
		Default(),
		{Mu: 40, Sigma: 0.5},
		{Mu: 10, Sigma: 12},
		{Mu: 25, Sigma: 0.01},
		{Mu: 25, Sigma: 0},
	}

	for _, a := range ratings {
		for _, b := range ratings {
			w, l := m.Update(a, b)
			assert.LessOrEqual(t, w.Sigma, a.Sigma)
			assert.LessOrEqual(t, l.Sigma, b.Sigma)
			assert.GreaterOrEqual(t, w.Sigma, 0.0)

			da, db := m.UpdateDraw(a, b)
			assert.LessOrEqual(t, da.Sigma, a.Sigma)
			assert.LessOrEqual(t, db.Sigma, b.Sigma)
		}
	}
}

func TestUpdateDraw_EqualRatings(t *testing.T) {
	m := NewModel()

	a, b := m.UpdateDraw(Default(), Default())

	assert.Equal(t, DefaultMu, a.Mu)
	assert.Equal(t, DefaultMu, b.Mu)
	assert.Less(t, a.Sigma, DefaultSigma)
	assert.Less(t, b.Sigma, DefaultSigma)
}

func TestUpdateDraw_PullsTowardEachOther(t *testing.T) {
	m := NewModel()
	hi := Rating{Mu: 30, Sigma: 6}
	lo := Rating{Mu: 20, Sigma: 6}

	newHi, newLo := m.UpdateDraw(hi, lo)

	assert.Less(t, newHi.Mu, hi.Mu)
	assert.Greater(t, newLo.Mu, lo.Mu)
	assert.Less(t, newHi.Mu-newLo.Mu, hi.Mu-lo.Mu)
}

func TestUpdate_Deterministic(t *testing.T) {
	m := NewModel()
	a := Rating{Mu: 27.123, Sigma: 6.54}
	b := Rating{Mu: 22.456, Sigma: 7.89}

	w1, l1 := m.Update(a, b)
	w2, l2 := m.Update(a, b)

	require.Equal(t, math.Float64bits(w1.Mu), math.Float64bits(w2.Mu))
	require.Equal(t, math.Float64bits(l1.Sigma), math.Float64bits(l2.Sigma))
}

func TestUpdate_PanicsOnInvalidSigma(t *testing.T) {
	m := NewModel()

	assert.Panics(t, func() { m.Update(Rating{Mu: 25, Sigma: -1}, Default()) })
	assert.Panics(t, func() { m.UpdateDraw(Default(), Rating{Mu: math.NaN(), Sigma: 1}) })
}
