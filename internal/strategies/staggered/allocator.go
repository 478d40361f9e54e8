package staggered

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ladder"
)

// allocate 单侧资金分配。优先级：修复部分成交 → 清理尘埃档 → 价差过宽补
// 近档 → 价差落在目标上下一档内时加仓 → 全部到位后补远档。每轮每侧最多
// 推进一层，下一轮从新的账本快照继续。
func (w *Worker) allocate(ctx context.Context, side domain.Side) error {
	if err := w.repairPartialFill(ctx, side); err != nil {
		return err
	}
	if err := w.cancelDust(ctx, side); err != nil {
		return err
	}

	if w.closest(side) == nil {
		return w.seedSide(ctx, side)
	}
	if !w.limits.WorthAllocating(side, w.balance.Free(side)) {
		return nil
	}

	spread := w.ownSpread()
	if spread > w.cfg.TargetSpread+w.cfg.Increment {
		return w.placeCloserOrder(ctx, side)
	}
	if spread < w.cfg.TargetSpread-w.cfg.Increment {
		// 自身盘口过窄：什么都不做，等对侧成交把价差拉开
		return nil
	}
	grew, err := w.increaseOrderSizes(ctx, side)
	if err != nil || grew {
		return err
	}
	if spread < w.cfg.TargetSpread {
		// 窄于目标价差一档以内：只加仓，不向边界延伸
		return nil
	}
	return w.placeFurtherOrder(ctx, side)
}

// seedSide 一侧完全空时重新铺设（引导同款几何级数，真实/虚拟按层级路由）。
func (w *Worker) seedSide(ctx context.Context, side domain.Side) error {
	levels := w.planSide(side)
	for _, lv := range levels {
		if _, err := w.place(ctx, side, lv.price, lv.locked); err != nil {
			return err
		}
	}
	if len(levels) > 0 {
		w.log.WithField("side", side).WithField("count", len(levels)).Info("side reseeded")
	}
	return nil
}

// repairPartialFill 最近档位成交超过阈值后撤掉重挂满额：保持盘口第一档
// 始终是完整尺寸，避免小额剩余一直占着最优价位。
func (w *Worker) repairPartialFill(ctx context.Context, side domain.Side) error {
	o := w.closest(side)
	if o == nil || o.IsVirtual() || o.FilledFraction() < w.cfg.PartialFillThreshold {
		return nil
	}
	if err := w.cancelReal(ctx, o); err != nil {
		return err
	}
	locked := math.Min(o.BaseAmount, w.balance.Free(side))
	locked = w.limits.BumpToMin(side, o.Price, locked)
	if locked > w.balance.Free(side) {
		w.log.WithField("order", o.String()).Warn("not enough funds to replace partially filled order")
		return nil
	}
	_, err := w.placeReal(ctx, side, o.Price, locked)
	if err == nil {
		w.log.WithField("price", o.Price).Info("partially filled order replaced at full size")
	}
	return err
}

// cancelDust 撤掉剩余量低于最小可表示尺寸的真实档位，资金并入后续分配。
func (w *Worker) cancelDust(ctx context.Context, side domain.Side) error {
	for _, o := range append([]*domain.Order{}, w.real(side)...) {
		if o.ForSale < w.limits.MinLocked(side, o.Price) {
			w.log.WithField("order", o.String()).Info("cancelling dust order")
			if err := w.cancelReal(ctx, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeCloserOrder 向中心价推进一档。受三个护栏约束：不越过目标价差的
// 一半、默认不吃掉对手盘口、非坡形模式下不超过对侧第一档的等值尺寸。
func (w *Worker) placeCloserOrder(ctx context.Context, side domain.Side) error {
	closest := w.closest(side)
	price := ladder.CloserPrice(side, closest.Price, w.cfg.Increment)

	// half-increment tolerance so the level sitting exactly on the
	// half-spread line is never rejected over float dust
	limit := w.initialPrice(side)
	tol := 1 + w.cfg.Increment/2
	if (side == domain.SideBuy && price > limit*tol) || (side == domain.SideSell && price*tol < limit) {
		return nil
	}

	if !w.cfg.InstantFillAllowed {
		t, err := w.oracle.Ticker(ctx)
		if err != nil {
			return err
		}
		crossesBook := (side == domain.SideBuy && t.LowestAsk > 0 && price >= t.LowestAsk) ||
			(side == domain.SideSell && t.HighestBid > 0 && price <= t.HighestBid)
		if crossesBook {
			w.log.WithField("price", price).Debug("closer order would fill instantly, holding")
			return nil
		}
	}

	rule := ladder.AdjacentRatio(w.mode, side)
	locked := ladder.PrevLocked(rule, side, closest, price, w.cfg.Increment)

	if w.mode != ladder.ModeBuySlope && w.mode != ladder.ModeSellSlope {
		if opp := w.closest(side.Opposite()); opp != nil {
			if mirror := ladder.LockedFor(side, price, opp.BaseAmount); locked > mirror {
				locked = mirror
			}
		}
	}
	if free := w.balance.Free(side); locked > free {
		locked = free // shrink to fit
	}
	locked = w.limits.BumpToMin(side, price, locked)
	if locked > w.balance.Free(side) {
		return nil
	}

	_, err := w.placeReal(ctx, side, price, locked)
	if err == nil {
		w.log.WithFields(logrus.Fields{"side": side, "price": price, "locked": locked}).
			Info("closer order placed")
	}
	return err
}

// increaseOrderSizes 空闲资金注入现有阶梯：沿模式规定的方向走一遍，
// 把第一个明显低于比例目标的档位补到位，每轮只动一档。
// 没有欠额档位时把锚点档（行进起点）整体抬升。
func (w *Worker) increaseOrderSizes(ctx context.Context, side domain.Side) (bool, error) {
	own := w.own(side)
	if len(own) == 0 {
		return false, nil
	}
	rule := ladder.AdjacentRatio(w.mode, side)
	fromCenter := ladder.GrowFrom(w.mode, side) == ladder.GrowFromCenter

	walk := own
	if !fromCenter {
		walk = make([]*domain.Order, len(own))
		for i, o := range own {
			walk[len(own)-1-i] = o
		}
	}

	free := w.balance.Free(side)
	for i := 1; i < len(walk); i++ {
		prev, o := walk[i-1], walk[i]
		var target float64
		if fromCenter {
			target = ladder.NextLocked(rule, side, prev, o.Price, w.cfg.Increment)
		} else {
			target = ladder.PrevLocked(rule, side, prev, o.Price, w.cfg.Increment)
		}
		if target-o.BaseAmount <= o.BaseAmount*w.cfg.Increment/2 {
			continue
		}
		grown := math.Min(target, o.BaseAmount+free)
		return true, w.resize(ctx, o, grown)
	}

	// 全部符合比例：抬升锚点档，让整条阶梯跟着下一轮逐档长高
	anchor := walk[0]
	if free <= anchor.BaseAmount*w.cfg.Increment/2 {
		return false, nil
	}
	return true, w.resize(ctx, anchor, anchor.BaseAmount+free)
}

// resize 调整单个档位的锁定量（真实档撤掉重挂，虚拟档就地改写）。
func (w *Worker) resize(ctx context.Context, o *domain.Order, locked float64) error {
	locked = domain.RoundAmount(locked, w.cfg.Market.PrecisionFor(o.Side))
	if locked <= o.BaseAmount {
		return nil
	}
	if o.IsVirtual() {
		delta := locked - o.BaseAmount
		o.BaseAmount = locked
		o.ForSale = locked
		o.QuoteAmount = domain.RoundAmount(
			ladder.ReceivedFor(o.Side, o.Price, locked), w.cfg.Market.PrecisionFor(o.Side.Opposite()))
		w.spendFree(o.Side, delta)
		w.dirty = true
		return nil
	}
	if err := w.cancelReal(ctx, o); err != nil {
		return err
	}
	if locked > w.balance.Free(o.Side) {
		locked = w.balance.Free(o.Side)
	}
	_, err := w.placeReal(ctx, o.Side, o.Price, locked)
	if err == nil {
		w.log.WithField("price", o.Price).WithField("locked", locked).Info("order size increased")
	}
	return err
}

// placeFurtherOrder 阶梯向边界延伸一档；越界即停（资金留在余额里）。
func (w *Worker) placeFurtherOrder(ctx context.Context, side domain.Side) error {
	furthest := w.furthest(side)
	price := ladder.FurtherPrice(side, furthest.Price, w.cfg.Increment)
	if !w.withinBound(side, price) {
		return nil
	}
	rule := ladder.AdjacentRatio(w.mode, side)
	locked := ladder.NextLocked(rule, side, furthest, price, w.cfg.Increment)
	if free := w.balance.Free(side); locked > free {
		locked = free
	}
	if locked < w.limits.MinLocked(side, price) {
		return nil
	}
	_, err := w.place(ctx, side, price, locked)
	if err == nil {
		w.log.WithFields(logrus.Fields{"side": side, "price": price, "locked": locked}).
			Info("further order placed")
	}
	return err
}

// fallback 死锁解除：连续三轮余额纹丝不动、价差仍然过宽且本轮无任何操作
// 时，撤掉最远的真实买单，用释放的资金在下一轮重新逼近盘口。
func (w *Worker) fallback(ctx context.Context) error {
	if !w.cfg.FallbackLogicEnabled || w.st.Bootstrapping {
		return nil
	}
	if w.opsThisPass > 0 || !w.balancesFlat() || w.ownSpread() <= w.cfg.TargetSpread {
		return nil
	}
	o := w.furthestReal(domain.SideBuy)
	if o == nil {
		return nil
	}
	w.log.WithField("order", o.String()).Warn("fallback: cancelling furthest buy to unstick the ladder")
	return w.cancelReal(ctx, o)
}
