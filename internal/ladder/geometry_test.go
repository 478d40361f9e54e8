package ladder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexbot/goladder/internal/domain"
)

var testMarket = domain.Market{
	Symbol:         "HERTZ/BTS",
	BaseSymbol:     "BTS",
	QuoteSymbol:    "HERTZ",
	BasePrecision:  5,
	QuotePrecision: 5,
}

func TestCalcOrdersCount(t *testing.T) {
	// 105 / 1.01^n >= 100 holds for n = 0..4
	assert.Equal(t, 5, CalcBuyOrdersCount(105, 100, 0.01))
	assert.Equal(t, 5, CalcSellOrdersCount(100, 105, 0.01))

	assert.Equal(t, 1, CalcBuyOrdersCount(100, 100, 0.01))
	assert.Equal(t, 0, CalcBuyOrdersCount(99, 100, 0.01))
	assert.Equal(t, 0, CalcBuyOrdersCount(100, 99, 0))
	assert.Equal(t, 0, CalcSellOrdersCount(-1, 100, 0.01))
}

func TestPriceSteps(t *testing.T) {
	inc := 0.02
	// closer/further are inverses on both sides
	p := 50.0
	assert.InEpsilon(t, p, FurtherPrice(domain.SideBuy, CloserPrice(domain.SideBuy, p, inc), inc), 1e-12)
	assert.InEpsilon(t, p, FurtherPrice(domain.SideSell, CloserPrice(domain.SideSell, p, inc), inc), 1e-12)

	// buys sit below center: closer raises the price
	assert.Greater(t, CloserPrice(domain.SideBuy, p, inc), p)
	assert.Less(t, CloserPrice(domain.SideSell, p, inc), p)

	// adjacent levels differ by exactly one increment factor
	assert.InEpsilon(t, 1+inc, CloserPrice(domain.SideBuy, p, inc)/p, 1e-12)
	assert.InEpsilon(t, 1+inc, p/FurtherPrice(domain.SideBuy, p, inc), 1e-12)
}

func TestReceivedLockedRoundTrip(t *testing.T) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		locked := 123.456
		price := 0.037
		received := ReceivedFor(side, price, locked)
		assert.InEpsilon(t, locked, LockedFor(side, price, received), 1e-12, "side %s", side)
	}
	assert.Zero(t, ReceivedFor(domain.SideBuy, 0, 10))
	assert.Zero(t, LockedFor(domain.SideSell, 0, 10))
}

func TestNewOrderTruncatesToPrecision(t *testing.T) {
	o := NewOrder(testMarket, domain.SideBuy, 0.25, 1.0000099)
	assert.Equal(t, 1.00000, o.BaseAmount)
	assert.Equal(t, o.BaseAmount, o.ForSale)
	assert.Equal(t, domain.RoundAmount(o.BaseAmount/0.25, 5), o.QuoteAmount)
	assert.True(t, o.IsVirtual())
}

// The single geometry invariant: however a neighbour is derived, deriving it
// back yields the original size.
func TestAdjacentRatioInvariant(t *testing.T) {
	inc := 0.015
	for _, rule := range []RatioRule{KeepQuote, KeepBase, ScaleSqrt} {
		for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
			closer := NewOrder(testMarket, side, 10.0, 500)
			furtherPrice := FurtherPrice(side, closer.Price, inc)
			locked := NextLocked(rule, side, closer, furtherPrice, inc)
			require.Greater(t, locked, 0.0)

			further := NewOrder(testMarket, side, furtherPrice, locked)
			back := PrevLocked(rule, side, further, closer.Price, inc)
			// each direction truncates once to precision, so allow two steps
			assert.InDelta(t, closer.BaseAmount, back, 2e-4, "rule %v side %s", rule, side)
		}
	}
}

func TestRuleShapes(t *testing.T) {
	inc := 0.01
	closer := NewOrder(testMarket, domain.SideBuy, 10.0, 100)
	fp := FurtherPrice(domain.SideBuy, closer.Price, inc)

	// mountain half shrinks outward, valley half stays flat, neutral between
	mountain := NextLocked(KeepQuote, domain.SideBuy, closer, fp, inc)
	valley := NextLocked(KeepBase, domain.SideBuy, closer, fp, inc)
	neutral := NextLocked(ScaleSqrt, domain.SideBuy, closer, fp, inc)

	assert.Less(t, mountain, closer.BaseAmount)
	assert.Equal(t, closer.BaseAmount, valley)
	assert.Greater(t, neutral, mountain)
	assert.Less(t, neutral, valley)
	assert.InEpsilon(t, closer.BaseAmount/math.Sqrt(1+inc), neutral, 1e-12)
}

func TestComputeLimits(t *testing.T) {
	l := ComputeLimits(testMarket, 0.01, 2.0)

	assert.InEpsilon(t, 2*testMarket.BaseStep()/0.01, l.MinBase, 1e-12)
	assert.InEpsilon(t, 2*testMarket.QuoteStep()/0.01, l.MinQuote, 1e-12)

	// at center 2.0 the base threshold is dominated by the quote conversion
	assert.InEpsilon(t, 10*testMarket.QuoteStep()*2.0, l.BaseThreshold, 1e-12)
	assert.InEpsilon(t, 10*testMarket.QuoteStep(), l.QuoteThreshold, 1e-12)

	assert.True(t, l.WorthAllocating(domain.SideBuy, l.BaseThreshold*2))
	assert.False(t, l.WorthAllocating(domain.SideBuy, l.BaseThreshold/2))

	bumped := l.BumpToMin(domain.SideBuy, 2.0, 0)
	assert.Equal(t, l.MinLocked(domain.SideBuy, 2.0), bumped)
	assert.Equal(t, 5.0, l.BumpToMin(domain.SideBuy, 2.0, 5.0))
}

func TestModeTable(t *testing.T) {
	cases := []struct {
		mode Mode
		buy  RatioRule
		sell RatioRule
	}{
		{ModeMountain, KeepQuote, KeepQuote},
		{ModeValley, KeepBase, KeepBase},
		{ModeNeutral, ScaleSqrt, ScaleSqrt},
		{ModeBuySlope, KeepBase, KeepQuote},
		{ModeSellSlope, KeepQuote, KeepBase},
	}
	for _, c := range cases {
		assert.Equal(t, c.buy, AdjacentRatio(c.mode, domain.SideBuy), "%s buy", c.mode)
		assert.Equal(t, c.sell, AdjacentRatio(c.mode, domain.SideSell), "%s sell", c.mode)
	}

	assert.Equal(t, GrowFromEdge, GrowFrom(ModeValley, domain.SideBuy))
	assert.Equal(t, GrowFromCenter, GrowFrom(ModeMountain, domain.SideSell))
	assert.Equal(t, GrowFromCenter, GrowFrom(ModeNeutral, domain.SideBuy))

	_, err := ParseMode("pyramid")
	assert.Error(t, err)
	m, err := ParseMode("valley")
	assert.NoError(t, err)
	assert.Equal(t, ModeValley, m)
}
