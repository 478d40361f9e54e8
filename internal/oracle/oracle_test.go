package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ledger"
)

// bookGateway 只喂订单簿，其余 Gateway 方法不会被 oracle 触达。
type bookGateway struct {
	ledger.Gateway
	bids, asks []*domain.Order
	calls      int
}

func (g *bookGateway) MarketOrders(context.Context, int) ([]*domain.Order, []*domain.Order, error) {
	g.calls++
	return g.bids, g.asks, nil
}

func level(side domain.Side, price, amount float64) *domain.Order {
	return &domain.Order{Side: side, Price: price, BaseAmount: amount, ForSale: amount}
}

func TestCenterPriceIsVolumeWeighted(t *testing.T) {
	gw := &bookGateway{
		bids: []*domain.Order{level(domain.SideBuy, 1.0, 100), level(domain.SideBuy, 0.9, 100)},
		asks: []*domain.Order{level(domain.SideSell, 1.1, 100), level(domain.SideSell, 1.2, 100)},
	}
	o := New(gw, "HERTZ/BTS")

	price, ok, err := o.MarketCenterPrice(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)
	// bid side averages 0.95, ask side 1.15; center is their geometric mean
	assert.InEpsilon(t, 1.0452, price, 1e-3)
}

func TestCenterPriceNeverReportsZero(t *testing.T) {
	cases := map[string]*bookGateway{
		"empty book":     {},
		"one-sided book": {bids: []*domain.Order{level(domain.SideBuy, 1.0, 10)}},
		"zero volume":    {bids: []*domain.Order{level(domain.SideBuy, 1.0, 0)}, asks: []*domain.Order{level(domain.SideSell, 1.1, 0)}},
	}
	for name, gw := range cases {
		o := New(gw, "HERTZ/BTS")
		price, ok, err := o.MarketCenterPrice(context.Background(), 5)
		require.NoError(t, err, name)
		assert.False(t, ok, name)
		assert.Zero(t, price, name)
	}
}

func TestTickerAndSpread(t *testing.T) {
	gw := &bookGateway{
		bids: []*domain.Order{level(domain.SideBuy, 1.0, 10)},
		asks: []*domain.Order{level(domain.SideSell, 1.05, 10)},
	}
	o := New(gw, "HERTZ/BTS")

	tk, err := o.Ticker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, tk.HighestBid)
	assert.Equal(t, 1.05, tk.LowestAsk)

	spread, ok, err := o.MarketSpread(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InEpsilon(t, 0.05, spread, 1e-9)
}

func TestBookReadsAreCachedUntilInvalidated(t *testing.T) {
	gw := &bookGateway{
		bids: []*domain.Order{level(domain.SideBuy, 1.0, 10)},
		asks: []*domain.Order{level(domain.SideSell, 1.05, 10)},
	}
	o := New(gw, "HERTZ/BTS")
	ctx := context.Background()

	_, _ = o.Ticker(ctx)
	_, _ = o.Ticker(ctx)
	assert.Equal(t, 1, gw.calls, "same depth within ttl hits the cache")

	o.Invalidate()
	_, _ = o.Ticker(ctx)
	assert.Equal(t, 2, gw.calls)
}
