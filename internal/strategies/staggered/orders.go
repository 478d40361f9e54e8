package staggered

import (
	"context"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ladder"
	"github.com/dexbot/goladder/internal/ledger"
)

// real / virtual list access. Lists are kept sorted closest-to-center first
// (buys descending, sells ascending) by refresh and every mutation below.

func (w *Worker) real(side domain.Side) []*domain.Order {
	if side == domain.SideBuy {
		return w.realBuys
	}
	return w.realSells
}

func (w *Worker) virtual(side domain.Side) []*domain.Order {
	if side == domain.SideBuy {
		return w.virtBuys
	}
	return w.virtSells
}

func (w *Worker) setReal(side domain.Side, orders []*domain.Order) {
	w.sortSide(side, orders)
	if side == domain.SideBuy {
		w.realBuys = orders
	} else {
		w.realSells = orders
	}
}

func (w *Worker) setVirtual(side domain.Side, orders []*domain.Order) {
	w.sortSide(side, orders)
	if side == domain.SideBuy {
		w.virtBuys = orders
	} else {
		w.virtSells = orders
	}
	w.dirty = true
}

func (w *Worker) sortSide(side domain.Side, orders []*domain.Order) {
	if side == domain.SideBuy {
		domain.SortBuysDescending(orders)
	} else {
		domain.SortSellsAscending(orders)
	}
}

// own returns real and virtual orders of one side merged, closest first.
func (w *Worker) own(side domain.Side) []*domain.Order {
	merged := append([]*domain.Order{}, w.real(side)...)
	merged = append(merged, w.virtual(side)...)
	w.sortSide(side, merged)
	return merged
}

// closest 返回该侧最靠近中心价的订单（含虚拟）
func (w *Worker) closest(side domain.Side) *domain.Order {
	own := w.own(side)
	if len(own) == 0 {
		return nil
	}
	return own[0]
}

// furthest 返回该侧离中心价最远的订单（含虚拟）
func (w *Worker) furthest(side domain.Side) *domain.Order {
	own := w.own(side)
	if len(own) == 0 {
		return nil
	}
	return own[len(own)-1]
}

func (w *Worker) furthestReal(side domain.Side) *domain.Order {
	real := w.real(side)
	if len(real) == 0 {
		return nil
	}
	return real[len(real)-1]
}

func (w *Worker) countReal(side domain.Side) int { return len(w.real(side)) }

func removeOrder(orders []*domain.Order, target *domain.Order) []*domain.Order {
	out := orders[:0]
	for _, o := range orders {
		if o == target {
			continue
		}
		if target.ID != "" && o.ID == target.ID {
			continue
		}
		out = append(out, o)
	}
	return out
}

// quoteAmountFor converts the engine's locked amount into the quote-asset
// amount the gateway contract expects.
func quoteAmountFor(side domain.Side, price, locked float64) float64 {
	if side == domain.SideBuy {
		return locked / price
	}
	return locked
}

// placeReal 通过网关下真实订单（带瞬态错误重试）。返回 nil 订单表示立即全部成交。
func (w *Worker) placeReal(ctx context.Context, side domain.Side, price, locked float64) (*domain.Order, error) {
	quoteAmount := quoteAmountFor(side, price, locked)
	var placed *domain.Order
	err := ledger.Retry(ctx, w.log, "place_"+string(side), func() error {
		var err error
		if side == domain.SideBuy {
			placed, err = w.gw.PlaceBuy(ctx, price, quoteAmount)
		} else {
			placed, err = w.gw.PlaceSell(ctx, price, quoteAmount)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	w.opsThisPass++
	if placed != nil {
		w.setReal(side, append(w.real(side), placed))
	}
	w.spendFree(side, locked)
	return placed, nil
}

// placeVirtual 只进入内存列表，绝不广播。
func (w *Worker) placeVirtual(side domain.Side, price, locked float64) *domain.Order {
	o := ladder.NewOrder(w.cfg.Market, side, price, locked)
	w.setVirtual(side, append(w.virtual(side), o))
	w.spendFree(side, o.BaseAmount)
	return o
}

// place routes through the tier rule: real while the side is under
// operational depth, virtual beyond it.
func (w *Worker) place(ctx context.Context, side domain.Side, price, locked float64) (*domain.Order, error) {
	if w.countReal(side) < w.cfg.OperationalDepth {
		return w.placeReal(ctx, side, price, locked)
	}
	return w.placeVirtual(side, price, locked), nil
}

// cancelReal 撤销真实订单并返还剩余锁定资金到空闲余额。
func (w *Worker) cancelReal(ctx context.Context, orders ...*domain.Order) error {
	live := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if o != nil && !o.IsVirtual() {
			live = append(live, o)
		}
	}
	if len(live) == 0 {
		return nil
	}
	err := ledger.Retry(ctx, w.log, "cancel", func() error {
		return w.gw.Cancel(ctx, live)
	})
	if err != nil {
		return err
	}
	w.opsThisPass++
	for _, o := range live {
		w.setReal(o.Side, removeOrder(w.real(o.Side), o))
		w.creditFree(o.Side, o.ForSale)
	}
	return nil
}

// dropVirtual removes a virtual entry without any ledger interaction.
func (w *Worker) dropVirtual(o *domain.Order) {
	w.setVirtual(o.Side, removeOrder(w.virtual(o.Side), o))
	w.creditFree(o.Side, o.BaseAmount)
}

func (w *Worker) spendFree(side domain.Side, locked float64) {
	if side == domain.SideBuy {
		w.balance.BaseFree -= locked
	} else {
		w.balance.QuoteFree -= locked
	}
}

func (w *Worker) creditFree(side domain.Side, locked float64) {
	if side == domain.SideBuy {
		w.balance.BaseFree += locked
	} else {
		w.balance.QuoteFree += locked
	}
}
