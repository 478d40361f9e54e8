package ladder

import (
	"math"
	"time"

	"github.com/dexbot/goladder/internal/domain"
)

// CalcBuyOrdersCount returns how many geometric price steps fit between
// priceHigh and priceLow, i.e. the number of integers n >= 0 with
// priceHigh / (1+increment)^n >= priceLow.
func CalcBuyOrdersCount(priceHigh, priceLow, increment float64) int {
	if priceHigh <= 0 || priceLow <= 0 || increment <= 0 || priceHigh < priceLow {
		return 0
	}
	count := 0
	for p := priceHigh; p >= priceLow; p /= 1 + increment {
		count++
		if count > 10000 { // runaway guard for absurd configs
			break
		}
	}
	return count
}

// CalcSellOrdersCount is the sell-side mirror: integers n >= 0 with
// priceLow * (1+increment)^n <= priceHigh.
func CalcSellOrdersCount(priceLow, priceHigh, increment float64) int {
	if priceHigh <= 0 || priceLow <= 0 || increment <= 0 || priceHigh < priceLow {
		return 0
	}
	count := 0
	for p := priceLow; p <= priceHigh; p *= 1 + increment {
		count++
		if count > 10000 {
			break
		}
	}
	return count
}

// CloserPrice 返回向中心靠近一个增量步长后的价格。
// 买单在中心价下方（靠近 = 提价），卖单在上方（靠近 = 降价）。
func CloserPrice(side domain.Side, price, increment float64) float64 {
	if side == domain.SideBuy {
		return price * (1 + increment)
	}
	return price / (1 + increment)
}

// FurtherPrice 返回远离中心一个增量步长后的价格。
func FurtherPrice(side domain.Side, price, increment float64) float64 {
	if side == domain.SideBuy {
		return price / (1 + increment)
	}
	return price * (1 + increment)
}

// ReceivedFor converts a locked amount into the opposite asset at the given
// market-oriented price (buy locks base and receives quote; sell locks quote
// and receives base).
func ReceivedFor(side domain.Side, price, locked float64) float64 {
	if price <= 0 {
		return 0
	}
	if side == domain.SideBuy {
		return locked / price
	}
	return locked * price
}

// LockedFor is the inverse of ReceivedFor.
func LockedFor(side domain.Side, price, received float64) float64 {
	if price <= 0 {
		return 0
	}
	if side == domain.SideBuy {
		return received * price
	}
	return received / price
}

// NewOrder builds an in-memory (virtual) order at a price for a locked
// amount, amounts truncated to the market's asset precision.
func NewOrder(m domain.Market, side domain.Side, price, locked float64) *domain.Order {
	locked = domain.RoundAmount(locked, m.PrecisionFor(side))
	received := domain.RoundAmount(ReceivedFor(side, price, locked), m.PrecisionFor(side.Opposite()))
	return &domain.Order{
		Side:        side,
		Price:       price,
		BaseAmount:  locked,
		QuoteAmount: received,
		ForSale:     locked,
		CreatedAt:   time.Now(),
	}
}

// NextLocked sizes the level one step further from center, given the closer
// neighbour, preserving the mode's adjacent-level ratio.
func NextLocked(rule RatioRule, side domain.Side, closer *domain.Order, furtherPrice, increment float64) float64 {
	switch rule {
	case KeepBase:
		return closer.BaseAmount
	case KeepQuote:
		return LockedFor(side, furtherPrice, closer.QuoteAmount)
	default: // ScaleSqrt: locked shrinks outward by sqrt(1+increment)
		return closer.BaseAmount / math.Sqrt(1+increment)
	}
}

// PrevLocked sizes the level one step closer to center, given the further
// neighbour.
func PrevLocked(rule RatioRule, side domain.Side, further *domain.Order, closerPrice, increment float64) float64 {
	switch rule {
	case KeepBase:
		return further.BaseAmount
	case KeepQuote:
		return LockedFor(side, closerPrice, further.QuoteAmount)
	default:
		return further.BaseAmount * math.Sqrt(1+increment)
	}
}

// Limits 每次维护循环计算一次并缓存的精度相关下限。
type Limits struct {
	// MinBase / MinQuote: smallest order the ladder may create on each side,
	// chosen so one more increment step is still representable.
	MinBase  float64
	MinQuote float64
	// BaseThreshold / QuoteThreshold: free balance under this is left
	// unallocated (avoids see-saw "trying to buy 0" failures).
	BaseThreshold  float64
	QuoteThreshold float64
}

// ComputeLimits derives the minimum order sizes and the asset reserve
// thresholds for a market at a given center price.
func ComputeLimits(m domain.Market, increment, centerPrice float64) Limits {
	l := Limits{
		MinBase:  2 * m.BaseStep() / increment,
		MinQuote: 2 * m.QuoteStep() / increment,
	}
	l.BaseThreshold = 10 * m.BaseStep()
	l.QuoteThreshold = 10 * m.QuoteStep()
	if centerPrice > 0 {
		// a side is only worth allocating when its dust also covers the
		// other side's dust converted at the center price
		l.BaseThreshold = math.Max(l.BaseThreshold, 10*m.QuoteStep()*centerPrice)
		l.QuoteThreshold = math.Max(l.QuoteThreshold, 10*m.BaseStep()/centerPrice)
	}
	return l
}

// MinLocked returns the minimum locked amount for an order on a side at a
// given price: max(order_min_quote, order_min_base/price) expressed in the
// side's own asset.
func (l Limits) MinLocked(side domain.Side, price float64) float64 {
	if price <= 0 {
		return 0
	}
	if side == domain.SideBuy {
		// buy locks base
		return math.Max(l.MinBase, l.MinQuote*price)
	}
	// sell locks quote
	return math.Max(l.MinQuote, l.MinBase/price)
}

// BumpToMin rejects undersized amounts by bumping them to the minimum.
func (l Limits) BumpToMin(side domain.Side, price, locked float64) float64 {
	if min := l.MinLocked(side, price); locked < min {
		return min
	}
	return locked
}

// WorthAllocating reports whether a side's free balance clears its reserve
// threshold.
func (l Limits) WorthAllocating(side domain.Side, free float64) bool {
	if side == domain.SideBuy {
		return free > l.BaseThreshold
	}
	return free > l.QuoteThreshold
}
