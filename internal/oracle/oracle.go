// Package oracle derives reference prices from the market order book.
package oracle

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ledger"
	"github.com/dexbot/goladder/pkg/cache"
)

// bookTTL 同一维护循环内复用订单簿读数，避免重复 RPC
const bookTTL = 2 * time.Second

// Ticker 盘口最优价
type Ticker struct {
	HighestBid float64
	LowestAsk  float64
}

type book struct {
	bids []*domain.Order
	asks []*domain.Order
}

// Oracle 从账本订单簿推导 ticker、平滑中心价与市场价差。
type Oracle struct {
	gw    ledger.Gateway
	books *cache.TTLCache[int, book]
	log   *logrus.Entry
}

func New(gw ledger.Gateway, market string) *Oracle {
	return &Oracle{
		gw:    gw,
		books: cache.New[int, book](bookTTL),
		log:   logrus.WithField("component", "oracle").WithField("market", market),
	}
}

func (o *Oracle) fetch(ctx context.Context, depth int) (book, error) {
	if b, ok := o.books.Get(depth); ok {
		return b, nil
	}
	bids, asks, err := o.gw.MarketOrders(ctx, depth)
	if err != nil {
		return book{}, err
	}
	b := book{bids: bids, asks: asks}
	o.books.Set(depth, b, 0)
	return b, nil
}

// Ticker 返回最优买卖价；空的一侧为 0。
func (o *Oracle) Ticker(ctx context.Context) (Ticker, error) {
	b, err := o.fetch(ctx, 1)
	if err != nil {
		return Ticker{}, err
	}
	var t Ticker
	if len(b.bids) > 0 {
		t.HighestBid = b.bids[0].Price
	}
	if len(b.asks) > 0 {
		t.LowestAsk = b.asks[0].Price
	}
	return t, nil
}

// MarketCenterPrice returns a volume-weighted center price over the top
// `depth` levels of each side. ok is false on an empty or one-sided book —
// zero is never reported as a valid price.
func (o *Oracle) MarketCenterPrice(ctx context.Context, depth int) (price float64, ok bool, err error) {
	b, err := o.fetch(ctx, depth)
	if err != nil {
		return 0, false, err
	}
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, false, nil
	}
	bid := weightedPrice(b.bids, depth)
	ask := weightedPrice(b.asks, depth)
	if bid <= 0 || ask <= 0 {
		return 0, false, nil
	}
	// geometric mean keeps the center stable under wide books
	return math.Sqrt(bid * ask), true, nil
}

// MarketSpread 返回 (lowestAsk - highestBid) / highestBid；空盘口时 ok=false。
func (o *Oracle) MarketSpread(ctx context.Context, depth int) (pct float64, ok bool, err error) {
	b, err := o.fetch(ctx, depth)
	if err != nil {
		return 0, false, err
	}
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, false, nil
	}
	bid, ask := b.bids[0].Price, b.asks[0].Price
	if bid <= 0 {
		return 0, false, nil
	}
	return ask/bid - 1, true, nil
}

// Invalidate 使缓存的订单簿读数立即失效（盘口变化事件后调用）。
func (o *Oracle) Invalidate() { o.books.Clear() }

func weightedPrice(orders []*domain.Order, depth int) float64 {
	if depth > len(orders) {
		depth = len(orders)
	}
	var volSum, pvSum float64
	for _, ord := range orders[:depth] {
		volSum += ord.BaseAmount
		pvSum += ord.Price * ord.BaseAmount
	}
	if volSum <= 0 {
		return 0
	}
	return pvSum / volSum
}
