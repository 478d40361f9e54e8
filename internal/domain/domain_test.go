package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestOrderFilledFraction(t *testing.T) {
	o := &Order{BaseAmount: 100, ForSale: 15}
	assert.InEpsilon(t, 0.85, o.FilledFraction(), 1e-12)
	assert.InEpsilon(t, 0.15, o.Remaining(), 1e-12)

	assert.Zero(t, (&Order{}).FilledFraction())
	var nilOrder *Order
	assert.Zero(t, nilOrder.FilledFraction())
	assert.True(t, nilOrder.IsVirtual())

	// over-filled readings are clamped
	assert.Equal(t, 1.0, (&Order{BaseAmount: 10, ForSale: -1}).FilledFraction())
}

func TestCloneVirtualStripsIdentity(t *testing.T) {
	o := &Order{ID: "1.7.123", Side: SideSell, Price: 2.5, BaseAmount: 10, ForSale: 4}
	c := o.CloneVirtual()
	assert.True(t, c.IsVirtual())
	assert.False(t, o.IsVirtual())
	assert.Equal(t, o.Price, c.Price)
	assert.Equal(t, o.Side, c.Side)
}

func TestSortClosestFirst(t *testing.T) {
	buys := []*Order{{Price: 1}, {Price: 3}, {Price: 2}}
	SortBuysDescending(buys)
	assert.Equal(t, []float64{3, 2, 1}, prices(buys))

	sells := []*Order{{Price: 9}, {Price: 7}, {Price: 8}}
	SortSellsAscending(sells)
	assert.Equal(t, []float64{7, 8, 9}, prices(sells))

	SortBuysDescending(nil) // no panic on empty input
}

func prices(orders []*Order) []float64 {
	out := make([]float64, len(orders))
	for i, o := range orders {
		out[i] = o.Price
	}
	return out
}

func TestRoundAmount(t *testing.T) {
	assert.Equal(t, 1.23456, RoundAmount(1.2345699, 5))
	assert.Equal(t, 1.0, RoundAmount(1.0000001, 5))
	assert.Equal(t, 0.0, RoundAmount(0.000001, 5))
	// never rounds up
	assert.Equal(t, 0.99999, RoundAmount(0.999999, 5))
	// degenerate inputs collapse to zero instead of poisoning order amounts
	assert.Zero(t, RoundAmount(nan(), 5))
}

func nan() float64 {
	z := 0.0
	return z / z
}

func TestMarketValidate(t *testing.T) {
	m := Market{Symbol: "HERTZ/BTS", BaseSymbol: "BTS", QuoteSymbol: "HERTZ", BasePrecision: 5, QuotePrecision: 5}
	assert.NoError(t, m.Validate())

	assert.Error(t, Market{Symbol: "X"}.Validate())
	m.BasePrecision = 40
	assert.Error(t, m.Validate())
}

func TestBalanceSnapshot(t *testing.T) {
	b := BalanceSnapshot{BaseFree: 10, QuoteFree: 20, BaseTotal: 30, QuoteTotal: 40}
	assert.Equal(t, 10.0, b.Free(SideBuy))
	assert.Equal(t, 20.0, b.Free(SideSell))
	assert.Equal(t, 30.0, b.Total(SideBuy))
	assert.Equal(t, 40.0, b.Total(SideSell))

	prev := b
	assert.False(t, b.Changed(prev, 5, 5))
	prev.BaseFree += 0.001
	assert.True(t, b.Changed(prev, 5, 5))
	prev.BaseFree = b.BaseFree + 1e-7 // below one base step
	assert.False(t, b.Changed(prev, 5, 5))
}
