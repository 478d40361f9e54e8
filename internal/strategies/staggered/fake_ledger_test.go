package staggered

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ledger"
)

// fakeLedger 内存账本：和真实节点一样持有订单与余额，成为 refresh 的
// 事实来源。测试通过 fill 模拟成交。
type fakeLedger struct {
	mu     sync.Mutex
	market domain.Market

	seq       int
	orders    map[string]*domain.Order
	baseFree  float64
	quoteFree float64

	bids, asks []*domain.Order
	fee        float64

	placeCalls  int
	cancelCalls int
	commitCalls int

	failPlace error   // next placements fail with this when set
	allocSkew float64 // added to the reported base allocation
}

func newFakeLedger(m domain.Market, baseFree, quoteFree float64) *fakeLedger {
	return &fakeLedger{
		market:    m,
		orders:    make(map[string]*domain.Order),
		baseFree:  baseFree,
		quoteFree: quoteFree,
	}
}

func (f *fakeLedger) place(side domain.Side, price, quoteAmount float64) (*domain.Order, error) {
	if f.failPlace != nil {
		return nil, f.failPlace
	}
	f.placeCalls++
	var locked, received float64
	if side == domain.SideBuy {
		locked = price * quoteAmount
		received = quoteAmount
		if locked > f.baseFree+1e-9 {
			return nil, &ledger.Error{Kind: ledger.KindStaleBalance, Op: "place", Err: errors.New("insufficient base")}
		}
		f.baseFree -= locked
	} else {
		locked = quoteAmount
		received = price * quoteAmount
		if locked > f.quoteFree+1e-9 {
			return nil, &ledger.Error{Kind: ledger.KindStaleBalance, Op: "place", Err: errors.New("insufficient quote")}
		}
		f.quoteFree -= locked
	}
	f.seq++
	o := &domain.Order{
		ID:          fmt.Sprintf("1.7.%d", f.seq),
		Side:        side,
		Price:       price,
		BaseAmount:  locked,
		QuoteAmount: received,
		ForSale:     locked,
	}
	f.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (f *fakeLedger) PlaceBuy(_ context.Context, price, quoteAmount float64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.place(domain.SideBuy, price, quoteAmount)
}

func (f *fakeLedger) PlaceSell(_ context.Context, price, quoteAmount float64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.place(domain.SideSell, price, quoteAmount)
}

func (f *fakeLedger) Cancel(_ context.Context, orders []*domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	for _, o := range orders {
		if o.IsVirtual() {
			continue
		}
		live, ok := f.orders[o.ID]
		if !ok {
			continue // already gone, counts as cancelled
		}
		if live.Side == domain.SideBuy {
			f.baseFree += live.ForSale
		} else {
			f.quoteFree += live.ForSale
		}
		delete(f.orders, o.ID)
	}
	return nil
}

func (f *fakeLedger) OwnOrders(context.Context) ([]*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (f *fakeLedger) MarketOrders(context.Context, int) ([]*domain.Order, []*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bids, f.asks, nil
}

func (f *fakeLedger) AllocatedAssets(_ context.Context, ids []string) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base, quote float64
	for _, id := range ids {
		o, ok := f.orders[id]
		if !ok {
			continue
		}
		if o.Side == domain.SideBuy {
			base += o.ForSale
		} else {
			quote += o.ForSale
		}
	}
	return base + f.allocSkew, quote, nil
}

func (f *fakeLedger) AccountBalances(context.Context) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseFree, f.quoteFree, nil
}

func (f *fakeLedger) OrderCreationFee(context.Context, string) (float64, error) {
	return f.fee, nil
}

func (f *fakeLedger) BeginBatch() *ledger.Batch { return ledger.NewBatch() }

func (f *fakeLedger) Commit(ctx context.Context, b *ledger.Batch) (*ledger.BatchResult, error) {
	f.mu.Lock()
	f.commitCalls++
	f.mu.Unlock()
	res := &ledger.BatchResult{Created: make([]*domain.Order, b.Len())}
	for i, op := range b.Ops() {
		switch op.Kind {
		case ledger.OpPlaceBuy:
			o, err := f.PlaceBuy(ctx, op.Price, op.QuoteAmount)
			if err != nil {
				return nil, err
			}
			res.Created[i] = o
		case ledger.OpPlaceSell:
			o, err := f.PlaceSell(ctx, op.Price, op.QuoteAmount)
			if err != nil {
				return nil, err
			}
			res.Created[i] = o
		case ledger.OpCancel:
			if err := f.Cancel(ctx, []*domain.Order{{ID: op.OrderID}}); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// fill simulates a (partial) trade against a resting order.
func (f *fakeLedger) fill(id string, fraction float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return
	}
	filled := o.ForSale * fraction
	o.ForSale -= filled
	if o.Side == domain.SideBuy {
		f.quoteFree += filled / o.Price
	} else {
		f.baseFree += filled * o.Price
	}
	if o.ForSale <= 1e-12 {
		delete(f.orders, id)
	}
}

func (f *fakeLedger) ordersOn(side domain.Side) []*domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Order
	for _, o := range f.orders {
		if o.Side == side {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	return &c
}
