package domain

import (
	"fmt"
	"time"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回对向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is one ladder level, either resting on the ledger (ID set) or
// tracked locally as a virtual placeholder (ID empty).
//
// Orientation: Price is always base-per-quote. Sell-side orders are stored
// after inverting to the buy orientation, so BaseAmount is always the amount
// of the asset this order locks on its own side and the two sides compare
// directly.
type Order struct {
	ID          string    `json:"id,omitempty"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`        // base/quote
	BaseAmount  float64   `json:"base_amount"`  // 本方锁定的资产数量
	QuoteAmount float64   `json:"quote_amount"` // 对向资产数量
	ForSale     float64   `json:"for_sale"`     // 未成交剩余（base 口径）
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// IsVirtual reports whether the order only exists in local state.
func (o *Order) IsVirtual() bool {
	return o == nil || o.ID == ""
}

// FilledFraction 已成交比例（0..1）
func (o *Order) FilledFraction() float64 {
	if o == nil || o.BaseAmount <= 0 {
		return 0
	}
	f := (o.BaseAmount - o.ForSale) / o.BaseAmount
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Remaining 剩余比例
func (o *Order) Remaining() float64 {
	return 1 - o.FilledFraction()
}

func (o *Order) String() string {
	tag := "real"
	if o.IsVirtual() {
		tag = "virtual"
	}
	return fmt.Sprintf("%s %s price=%.8f base=%.8f quote=%.8f forSale=%.8f",
		tag, o.Side, o.Price, o.BaseAmount, o.QuoteAmount, o.ForSale)
}

// CloneVirtual returns a copy of the order with the ledger identity stripped,
// suitable for inserting into the virtual list after a demotion.
func (o *Order) CloneVirtual() *Order {
	c := *o
	c.ID = ""
	c.CreatedAt = time.Now()
	return &c
}

// SortBuysDescending 就地排序：买单按价格从高到低（最靠近中心价的在前）。
func SortBuysDescending(orders []*Order) {
	sortOrders(orders, func(a, b *Order) bool { return a.Price > b.Price })
}

// SortSellsAscending 就地排序：卖单（已反转口径）按价格从低到高（最靠近中心价的在前）。
func SortSellsAscending(orders []*Order) {
	sortOrders(orders, func(a, b *Order) bool { return a.Price < b.Price })
}

func sortOrders(orders []*Order, less func(a, b *Order) bool) {
	// insertion sort; ladders are small (tens of levels)
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && less(orders[j], orders[j-1]); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
}
