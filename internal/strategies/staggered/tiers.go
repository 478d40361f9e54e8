package staggered

import (
	"context"
	"math"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ladder"
	"github.com/dexbot/goladder/internal/ledger"
)

// outwardRatio 同侧相邻档位向外递减的锁定量比例
func outwardRatio(rule ladder.RatioRule, increment float64) float64 {
	switch rule {
	case ladder.KeepQuote:
		return 1 / (1 + increment)
	case ladder.KeepBase:
		return 1
	default: // ScaleSqrt
		return 1 / math.Sqrt(1+increment)
	}
}

// initialPrice 自中心价向外半个目标价差处的首档价格
func (w *Worker) initialPrice(side domain.Side) float64 {
	if side == domain.SideBuy {
		return w.center / (1 + w.cfg.TargetSpread/2)
	}
	return w.center * (1 + w.cfg.TargetSpread/2)
}

func (w *Worker) withinBound(side domain.Side, price float64) bool {
	if side == domain.SideBuy {
		return price >= w.cfg.LowerBound
	}
	return price <= w.cfg.UpperBound
}

type plannedLevel struct {
	price  float64
	locked float64
}

// planSide 从首档到边界按几何级数分配该侧全部空闲资金。
// 锁定量按模式的向外比例 r 递减：locked0 = free*(1-r)/(1-r^n)。
func (w *Worker) planSide(side domain.Side) []plannedLevel {
	free := w.balance.Free(side)
	if !w.limits.WorthAllocating(side, free) {
		return nil
	}
	top := w.initialPrice(side)
	if !w.withinBound(side, top) {
		return nil
	}
	var n int
	if side == domain.SideBuy {
		n = ladder.CalcBuyOrdersCount(top, w.cfg.LowerBound, w.cfg.Increment)
	} else {
		n = ladder.CalcSellOrdersCount(top, w.cfg.UpperBound, w.cfg.Increment)
	}
	if n <= 0 {
		return nil
	}

	rule := ladder.AdjacentRatio(w.mode, side)
	r := outwardRatio(rule, w.cfg.Increment)
	var locked float64
	if r == 1 {
		locked = free / float64(n)
	} else {
		locked = free * (1 - r) / (1 - math.Pow(r, float64(n)))
	}

	levels := make([]plannedLevel, 0, n)
	price := top
	for i := 0; i < n; i++ {
		if locked < w.limits.MinLocked(side, price) {
			break // outermost levels too small to represent
		}
		levels = append(levels, plannedLevel{price: price, locked: locked})
		price = ladder.FurtherPrice(side, price, w.cfg.Increment)
		locked *= r
	}
	return levels
}

// bootstrap 首次引导：两侧各铺满一条阶梯，真实档位用一次原子批量广播，
// 余下档位直接进虚拟列表。账本上已有订单说明状态丢失而非首启，转为恢复。
func (w *Worker) bootstrap(ctx context.Context) error {
	if len(w.realBuys)+len(w.realSells) > 0 {
		w.log.Info("found live orders during bootstrap, restoring instead")
		w.st.Bootstrapping = false
		w.dirty = true
		w.restoreVirtualOrders()
		return nil
	}

	buys := w.planSide(domain.SideBuy)
	sells := w.planSide(domain.SideSell)
	if len(buys)+len(sells) == 0 {
		w.log.Warn("nothing to bootstrap, both sides below allocation threshold")
		return nil
	}

	batch := w.gw.BeginBatch()
	type pending struct {
		side domain.Side
		plannedLevel
	}
	var real, virt []pending
	queue := func(side domain.Side, levels []plannedLevel) {
		for i, lv := range levels {
			if i >= w.cfg.OperationalDepth {
				// 虚拟档位等批量提交成功后再入列；提交失败时本地不留痕迹，
				// 重试的引导不会铺出第二条重复阶梯
				virt = append(virt, pending{side: side, plannedLevel: lv})
				continue
			}
			if side == domain.SideBuy {
				batch.PlaceBuy(lv.price, quoteAmountFor(side, lv.price, lv.locked))
			} else {
				batch.PlaceSell(lv.price, quoteAmountFor(side, lv.price, lv.locked))
			}
			real = append(real, pending{side: side, plannedLevel: lv})
		}
	}
	queue(domain.SideBuy, buys)
	queue(domain.SideSell, sells)

	var res *ledger.BatchResult
	err := ledger.Retry(ctx, w.log, "bootstrap_commit", func() error {
		var err error
		res, err = w.gw.Commit(ctx, batch)
		return err
	})
	if err != nil {
		return err
	}
	w.opsThisPass += batch.Len()
	for i, p := range real {
		if i < len(res.Created) && res.Created[i] != nil {
			w.setReal(p.side, append(w.real(p.side), res.Created[i]))
		}
		w.spendFree(p.side, p.locked)
	}
	for _, p := range virt {
		w.placeVirtual(p.side, p.price, p.locked)
	}

	w.st.Bootstrapping = false
	w.dirty = true
	w.log.WithField("buys", len(buys)).WithField("sells", len(sells)).Info("ladder bootstrapped")
	return nil
}

// restoreVirtualOrders 状态丢失后的幂等重建：从最远真实档位继续按比例规则
// 向外推到边界，逐档消耗剩余空闲资金。已有虚拟档位的一侧不动。
func (w *Worker) restoreVirtualOrders() {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if len(w.virtual(side)) > 0 {
			continue
		}
		anchor := w.furthestReal(side)
		if anchor == nil {
			continue
		}
		rule := ladder.AdjacentRatio(w.mode, side)
		restored := 0
		closer := anchor
		price := ladder.FurtherPrice(side, anchor.Price, w.cfg.Increment)
		for w.withinBound(side, price) {
			locked := ladder.NextLocked(rule, side, closer, price, w.cfg.Increment)
			if locked < w.limits.MinLocked(side, price) || locked > w.balance.Free(side) {
				break
			}
			closer = w.placeVirtual(side, price, locked)
			price = ladder.FurtherPrice(side, price, w.cfg.Increment)
			restored++
		}
		if restored > 0 {
			w.log.WithField("side", side).WithField("count", restored).Info("virtual orders restored")
		}
	}
}

// rebalanceTiers 维持每侧真实档位数落在 [depth, depth+headroom] 内：
// 不足则把最近的虚拟档位提升为真实（成功后才删除虚拟项），
// 超限则把最远的真实档位降级回虚拟。
func (w *Worker) rebalanceTiers(ctx context.Context) error {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if err := w.promote(ctx, side); err != nil {
			return err
		}
		if err := w.demote(ctx, side); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) promote(ctx context.Context, side domain.Side) error {
	for w.countReal(side) < w.cfg.OperationalDepth && len(w.virtual(side)) > 0 {
		v := w.virtual(side)[0]
		if _, err := w.placeReal(ctx, side, v.Price, v.BaseAmount); err != nil {
			return err
		}
		// 真实订单已确认，虚拟项才可删除（其锁定资金随之释放）
		w.dropVirtual(v)
		w.log.WithField("order", v.String()).Debug("virtual order promoted")
	}
	return nil
}

func (w *Worker) demote(ctx context.Context, side domain.Side) error {
	for w.countReal(side) > w.cfg.OperationalDepth+depthHeadroom {
		real := w.real(side)
		o := real[len(real)-1]
		inward := real[len(real)-2]
		// 尺寸与比例规则不符的档位留给调仓逻辑先修
		rule := ladder.AdjacentRatio(w.mode, side)
		expected := ladder.NextLocked(rule, side, inward, o.Price, w.cfg.Increment)
		if math.Abs(o.BaseAmount-expected) > expected*w.cfg.Increment/2 {
			return nil
		}
		if err := w.cancelReal(ctx, o); err != nil {
			return err
		}
		v := o.CloneVirtual()
		v.BaseAmount = o.ForSale
		v.ForSale = o.ForSale
		v.QuoteAmount = domain.RoundAmount(
			ladder.ReceivedFor(side, v.Price, v.BaseAmount), w.cfg.Market.PrecisionFor(side.Opposite()))
		w.setVirtual(side, append(w.virtual(side), v))
		w.spendFree(side, v.BaseAmount)
		w.log.WithField("order", v.String()).Debug("real order demoted")
	}
	return nil
}
