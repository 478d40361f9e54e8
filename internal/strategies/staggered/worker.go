// Package staggered implements the staggered order ladder strategy: a
// geometric grid of buy and sell orders around a center price, with only the
// closest levels resting on the ledger and the rest tracked virtually.
package staggered

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/journal"
	"github.com/dexbot/goladder/internal/ladder"
	"github.com/dexbot/goladder/internal/ledger"
	"github.com/dexbot/goladder/internal/oracle"
	"github.com/dexbot/goladder/pkg/persistence"
	"github.com/dexbot/goladder/pkg/sigchan"
)

// Worker 驱动单个市场上的一条阶梯。所有可变状态只在 Maintain 内部被触碰，
// 并由 maintainMu 串行化；事件回调只发信号，绝不直接改状态。
type Worker struct {
	cfg     Config
	mode    ladder.Mode
	gw      ledger.Gateway
	oracle  *oracle.Oracle
	store   persistence.Store
	journal *journal.Journal
	acctMu  *sync.Mutex
	log     *logrus.Entry

	disabled atomic.Bool
	paused   atomic.Bool
	sig      *sigchan.Chan

	maintainMu sync.Mutex
	st         workerState

	realBuys  []*domain.Order
	realSells []*domain.Order
	virtBuys  []*domain.Order
	virtSells []*domain.Order

	balance    domain.BalanceSnapshot
	center     float64
	limits     ladder.Limits
	feeReserve float64
	feeKnown   bool

	checkInterval time.Duration
	lastPass      time.Time
	opsThisPass   int
	dirty         bool
}

// New wires a worker from config. A validation failure returns an error and
// the caller must not run the worker; there is no partially-valid mode.
func New(cfg Config, gw ledger.Gateway, ora *oracle.Oracle, svc persistence.Service,
	jrnl *journal.Journal, acctMu *sync.Mutex) (*Worker, error) {

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := ladder.ParseMode(cfg.Mode)

	store := svc.NewStore(ID, cfg.Name, "state")
	st, err := loadState(store)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		cfg:     cfg,
		mode:    mode,
		gw:      gw,
		oracle:  ora,
		store:   store,
		journal: jrnl,
		acctMu:  acctMu,
		sig:     sigchan.New(1),
		st:      st,
		log: logrus.WithField("strategy", ID).
			WithField("worker", cfg.Name).
			WithField("market", cfg.Market.Symbol),
	}
	w.checkInterval = cfg.MinCheckInterval
	if st.CheckIntervalSec > 0 {
		w.checkInterval = time.Duration(st.CheckIntervalSec) * time.Second
	}
	for _, o := range st.VirtualOrders {
		if o.Side == domain.SideBuy {
			w.virtBuys = append(w.virtBuys, o)
		} else {
			w.virtSells = append(w.virtSells, o)
		}
	}
	w.sortSide(domain.SideBuy, w.virtBuys)
	w.sortSide(domain.SideSell, w.virtSells)
	return w, nil
}

// events.Worker 实现

func (w *Worker) Name() string         { return w.cfg.Name }
func (w *Worker) MarketSymbol() string { return w.cfg.Market.Symbol }
func (w *Worker) Account() string      { return w.cfg.Account }
func (w *Worker) Disabled() bool       { return w.disabled.Load() }

func (w *Worker) OnBlock(uint64) { w.sig.Emit() }

func (w *Worker) OnMarketUpdate() {
	w.oracle.Invalidate()
	w.sig.Emit()
}

func (w *Worker) OnAccountUpdate() { w.sig.Emit() }

// Run 是 worker 的主循环：定时器与事件信号合并唤醒，两次维护之间保持最小间隔。
func (w *Worker) Run(ctx context.Context) {
	w.log.WithFields(logrus.Fields{
		"mode":   w.cfg.Mode,
		"bounds": []float64{w.cfg.LowerBound, w.cfg.UpperBound},
		"depth":  w.cfg.OperationalDepth,
	}).Info("worker starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return
		case <-w.sig.C():
			// 事件可能很密集；不足最小间隔就并回下一次定时触发
			if since := time.Since(w.lastPass); since < w.cfg.MinCheckInterval {
				resetTimer(timer, w.cfg.MinCheckInterval-since)
				continue
			}
		case <-timer.C:
		}

		w.Maintain(ctx)
		resetTimer(timer, w.checkInterval)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Maintain 执行一轮完整维护。任何一步出错都放弃本轮，下一轮重新从账本拉取
// 全量状态（本地镜像可能已经和账本脱节）。
func (w *Worker) Maintain(ctx context.Context) {
	if w.disabled.Load() || w.paused.Load() {
		return
	}
	w.maintainMu.Lock()
	defer w.maintainMu.Unlock()
	w.acctMu.Lock()
	defer w.acctMu.Unlock()

	w.opsThisPass = 0
	w.lastPass = time.Now()

	if err := w.pass(ctx); err != nil {
		w.log.WithError(err).Error("maintenance pass failed")
		// 出错后尽快重试
		w.setCheckInterval(w.cfg.MinCheckInterval)
		return
	}
	w.adaptInterval()
	w.persist()
	_ = w.journal.RecordPass(w.cfg.Name, w.opsThisPass, w.center, w.ownSpread())
}

func (w *Worker) pass(ctx context.Context) error {
	if err := w.refresh(ctx); err != nil {
		return err
	}

	center, ok, err := w.resolveCenter(ctx)
	if err != nil {
		return err
	}
	if !ok {
		w.log.Warn("order book too thin for a center price, skipping pass")
		return nil
	}
	if w.st.OldCenterPrice > 0 && !domain.AmountsEqual(center, w.st.OldCenterPrice, w.cfg.Market.QuotePrecision) {
		_ = w.journal.RecordCenterShift(w.cfg.Name, w.st.OldCenterPrice, center)
	}
	w.center = center
	w.st.OldCenterPrice = center
	w.limits = ladder.ComputeLimits(w.cfg.Market, w.cfg.Increment, center)

	if w.stopLossHit() {
		return w.triggerStopLoss(ctx)
	}

	if err := w.checkConservation(ctx); err != nil {
		return err
	}

	if err := w.cancelOutOfBounds(ctx); err != nil {
		return err
	}

	if w.st.Bootstrapping {
		if err := w.bootstrap(ctx); err != nil {
			return err
		}
	} else {
		w.restoreVirtualOrders()
	}

	if err := w.rebalanceTiers(ctx); err != nil {
		return err
	}
	if err := w.allocate(ctx, domain.SideBuy); err != nil {
		return err
	}
	if err := w.allocate(ctx, domain.SideSell); err != nil {
		return err
	}
	// 补近档可能把某一侧顶出层深上限，收尾再平衡一次
	if err := w.rebalanceTiers(ctx); err != nil {
		return err
	}
	if err := w.fallback(ctx); err != nil {
		return err
	}

	w.pushBalanceHistory()
	return nil
}

// refresh 重新拉取自身订单与余额，并据此记账成交。
func (w *Worker) refresh(ctx context.Context) error {
	prev := make(map[string]*domain.Order, len(w.realBuys)+len(w.realSells))
	for _, o := range w.realBuys {
		prev[o.ID] = o
	}
	for _, o := range w.realSells {
		prev[o.ID] = o
	}

	var own []*domain.Order
	err := ledger.Retry(ctx, w.log, "own_orders", func() error {
		var err error
		own, err = w.gw.OwnOrders(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var buys, sells []*domain.Order
	for _, o := range own {
		if o.Side == domain.SideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
		if p, hit := prev[o.ID]; hit {
			if delta := p.ForSale - o.ForSale; delta > w.cfg.Market.BaseStep() {
				_ = w.journal.RecordFill(w.cfg.Name, string(o.Side), o.Price, delta)
			}
			delete(prev, o.ID)
		}
	}
	// 消失的真实订单按全部成交记账（外部撤单无法区分，语义相同：资金回到余额）
	for _, p := range prev {
		if p.ForSale > 0 {
			_ = w.journal.RecordFill(w.cfg.Name, string(p.Side), p.Price, p.ForSale)
		}
	}
	w.setReal(domain.SideBuy, buys)
	w.setReal(domain.SideSell, sells)

	var baseFree, quoteFree float64
	err = ledger.Retry(ctx, w.log, "balances", func() error {
		var err error
		baseFree, quoteFree, err = w.gw.AccountBalances(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := w.refreshFeeReserve(ctx); err != nil {
		w.log.WithError(err).Warn("order creation fee unavailable, reserving nothing")
	}

	// 虚拟订单的资金只存在于账本余额里，这里把它们当作已占用
	for _, o := range w.virtBuys {
		baseFree -= o.BaseAmount
	}
	for _, o := range w.virtSells {
		quoteFree -= o.BaseAmount
	}
	switch w.cfg.Market.FeeAsset {
	case w.cfg.Market.BaseSymbol:
		baseFree -= w.feeReserve
	case w.cfg.Market.QuoteSymbol:
		quoteFree -= w.feeReserve
	}

	snap := domain.BalanceSnapshot{BaseFree: baseFree, QuoteFree: quoteFree}
	snap.BaseTotal = baseFree + sumForSale(w.realBuys) + sumLocked(w.virtBuys)
	snap.QuoteTotal = quoteFree + sumForSale(w.realSells) + sumLocked(w.virtSells)
	w.balance = snap
	return nil
}

func sumForSale(orders []*domain.Order) float64 {
	var s float64
	for _, o := range orders {
		s += o.ForSale
	}
	return s
}

func sumLocked(orders []*domain.Order) float64 {
	var s float64
	for _, o := range orders {
		s += o.BaseAmount
	}
	return s
}

// refreshFeeReserve keeps enough of the fee asset aside for one full ladder's
// worth of order creations. Fetched once; the fee does not move intra-run.
func (w *Worker) refreshFeeReserve(ctx context.Context) error {
	if w.feeKnown || w.cfg.Market.FeeAsset == "" {
		return nil
	}
	fee, err := w.gw.OrderCreationFee(ctx, w.cfg.Market.FeeAsset)
	if err != nil {
		return err
	}
	w.feeReserve = fee * float64(2*(w.cfg.OperationalDepth+depthHeadroom))
	w.feeKnown = true
	return nil
}

func (w *Worker) resolveCenter(ctx context.Context) (float64, bool, error) {
	if !w.cfg.DynamicCenter {
		return w.cfg.CenterPrice, true, nil
	}
	return w.oracle.MarketCenterPrice(ctx, w.cfg.OperationalDepth)
}

// checkConservation 对账：账本侧锁定资产必须与本地镜像一致，否则说明镜像
// 已脱节（外部操作同一账户），放弃本轮并在下一轮重建。
func (w *Worker) checkConservation(ctx context.Context) error {
	ids := make([]string, 0, len(w.realBuys)+len(w.realSells))
	for _, o := range w.realBuys {
		ids = append(ids, o.ID)
	}
	for _, o := range w.realSells {
		ids = append(ids, o.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	base, quote, err := w.gw.AllocatedAssets(ctx, ids)
	if err != nil {
		return err
	}
	localBase := sumForSale(w.realBuys)
	localQuote := sumForSale(w.realSells)
	if !domain.AmountsEqual(base, localBase, w.cfg.Market.BasePrecision) ||
		!domain.AmountsEqual(quote, localQuote, w.cfg.Market.QuotePrecision) {
		w.log.WithFields(logrus.Fields{
			"ledger_base": base, "local_base": localBase,
			"ledger_quote": quote, "local_quote": localQuote,
		}).Warn("allocated assets diverged from local mirror, abandoning pass")
		return errors.Errorf("allocated assets diverged: ledger %f/%f, local %f/%f",
			base, quote, localBase, localQuote)
	}
	return nil
}

// stopLossHit 中心价越出边界超过止损余量
func (w *Worker) stopLossHit() bool {
	if !w.cfg.StopLossEnabled {
		return false
	}
	return w.center < w.cfg.LowerBound*(1-w.cfg.StopLossMargin) ||
		w.center > w.cfg.UpperBound*(1+w.cfg.StopLossMargin)
}

func (w *Worker) triggerStopLoss(ctx context.Context) error {
	w.log.WithField("center", w.center).Error("stop loss triggered, cancelling all orders and disabling worker")
	all := append(append([]*domain.Order{}, w.realBuys...), w.realSells...)
	if err := w.cancelReal(ctx, all...); err != nil {
		return err
	}
	w.disabled.Store(true)
	w.persist()
	return nil
}

// cancelOutOfBounds 撤掉价格落在 [lower, upper] 之外的档位（真实撤单，
// 虚拟直接丢弃）。容忍半步误差，避免边界档位来回抖动。
func (w *Worker) cancelOutOfBounds(ctx context.Context) error {
	tol := 1 + w.cfg.Increment/2
	inBounds := func(p float64) bool {
		return p*tol >= w.cfg.LowerBound && p <= w.cfg.UpperBound*tol
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		for _, o := range append([]*domain.Order{}, w.real(side)...) {
			if !inBounds(o.Price) {
				w.log.WithField("order", o.String()).Info("cancelling out-of-bounds order")
				if err := w.cancelReal(ctx, o); err != nil {
					return err
				}
			}
		}
		for _, o := range append([]*domain.Order{}, w.virtual(side)...) {
			if !inBounds(o.Price) {
				w.dropVirtual(o)
			}
		}
	}
	return nil
}

// ownSpread 自身盘口价差：最近买与最近卖之间的相对间隙。缺一侧视为无穷大。
func (w *Worker) ownSpread() float64 {
	buy, sell := w.closest(domain.SideBuy), w.closest(domain.SideSell)
	if buy == nil || sell == nil || buy.Price <= 0 {
		return math.Inf(1)
	}
	return sell.Price/buy.Price - 1
}

func (w *Worker) pushBalanceHistory() {
	w.st.BaseHistory = pushHistory(w.st.BaseHistory, w.balance.BaseFree)
	w.st.QuoteHistory = pushHistory(w.st.QuoteHistory, w.balance.QuoteFree)
	w.dirty = true
}

func (w *Worker) balancesFlat() bool {
	return historyFlat(w.st.BaseHistory, w.cfg.Market.BasePrecision) &&
		historyFlat(w.st.QuoteHistory, w.cfg.Market.QuotePrecision)
}

// adaptInterval 自适应检查间隔：连续无事可做就指数回退，一有动作立即恢复。
func (w *Worker) adaptInterval() {
	if w.opsThisPass == 0 && w.balancesFlat() {
		w.setCheckInterval(w.checkInterval * 2)
	} else {
		w.setCheckInterval(w.cfg.MinCheckInterval)
	}
}

func (w *Worker) setCheckInterval(d time.Duration) {
	if d < w.cfg.MinCheckInterval {
		d = w.cfg.MinCheckInterval
	}
	if d > w.cfg.MaxCheckInterval {
		d = w.cfg.MaxCheckInterval
	}
	if d != w.checkInterval {
		w.log.WithField("interval", d).Debug("check interval adjusted")
	}
	w.checkInterval = d
	w.st.CheckIntervalSec = int(d / time.Second)
	w.dirty = true
}

// persist 把虚拟订单与簿记状态写入存储（仅在有变化时）。
func (w *Worker) persist() {
	if !w.dirty {
		return
	}
	w.st.VirtualOrders = append(append([]*domain.Order{}, w.virtBuys...), w.virtSells...)
	if err := w.store.Save(&w.st); err != nil {
		w.log.WithError(err).Error("persist worker state")
		return
	}
	w.dirty = false
}

// Pause 撤掉全部真实订单但保留虚拟档位与持久化状态，可随时 Resume。
func (w *Worker) Pause(ctx context.Context) error {
	w.paused.Store(true)
	w.maintainMu.Lock()
	defer w.maintainMu.Unlock()
	w.acctMu.Lock()
	defer w.acctMu.Unlock()

	all := append(append([]*domain.Order{}, w.realBuys...), w.realSells...)
	if err := w.cancelReal(ctx, all...); err != nil {
		return err
	}
	w.persist()
	w.log.Info("worker paused")
	return nil
}

// Resume 解除暂停并立即触发一轮维护。
func (w *Worker) Resume() {
	if w.paused.CompareAndSwap(true, false) {
		w.log.Info("worker resumed")
		w.sig.Emit()
	}
}

// Purge 撤单并清空全部本地与持久化状态，worker 回到未引导状态。
func (w *Worker) Purge(ctx context.Context) error {
	w.paused.Store(true)
	w.maintainMu.Lock()
	defer w.maintainMu.Unlock()
	w.acctMu.Lock()
	defer w.acctMu.Unlock()

	all := append(append([]*domain.Order{}, w.realBuys...), w.realSells...)
	if err := w.cancelReal(ctx, all...); err != nil {
		return err
	}
	w.realBuys, w.realSells = nil, nil
	w.virtBuys, w.virtSells = nil, nil
	w.st = workerState{Bootstrapping: true}
	if err := w.store.Delete(); err != nil && err != persistence.ErrNotExists {
		w.log.WithError(err).Error("purge worker state")
	}
	w.dirty = false
	w.paused.Store(false)
	w.log.Info("worker purged")
	w.sig.Emit()
	return nil
}

// Paused 当前是否处于暂停态
func (w *Worker) Paused() bool { return w.paused.Load() }
