package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/dexbot/goladder/internal/domain"
)

// Gateway 是策略核心对账本客户端的全部依赖。
//
// PlaceBuy/PlaceSell take the market-oriented price (base per quote) and the
// quote-asset amount; the implementation handles the ledger's native sell
// orientation. Cancel is best-effort: it attempts one batched cancel, falls
// back to one-by-one on partial failure, and succeeds iff every order ended
// up cancelled.
type Gateway interface {
	PlaceBuy(ctx context.Context, price, quoteAmount float64) (*domain.Order, error)
	PlaceSell(ctx context.Context, price, quoteAmount float64) (*domain.Order, error)
	Cancel(ctx context.Context, orders []*domain.Order) error

	OwnOrders(ctx context.Context) ([]*domain.Order, error)
	MarketOrders(ctx context.Context, depth int) (bids, asks []*domain.Order, err error)
	AllocatedAssets(ctx context.Context, orderIDs []string) (base, quote float64, err error)
	AccountBalances(ctx context.Context) (base, quote float64, err error)
	OrderCreationFee(ctx context.Context, asset string) (float64, error)

	// BeginBatch returns an explicit batch value; operations recorded on it
	// land atomically on Commit or not at all. On commit failure the caller
	// must re-derive order/balance state from the ledger.
	BeginBatch() *Batch
	Commit(ctx context.Context, b *Batch) (*BatchResult, error)
}

// OpKind 批量操作类型
type OpKind int

const (
	OpPlaceBuy OpKind = iota
	OpPlaceSell
	OpCancel
)

// Op 批次里的一条操作（place 用 Price/QuoteAmount，cancel 用 OrderID）。
type Op struct {
	Kind        OpKind
	Price       float64
	QuoteAmount float64
	OrderID     string
}

// Batch 显式批量操作值（代替隐藏的客户端 bundle 开关）。
type Batch struct {
	ID  string
	ops []Op
}

// NewBatch 供 Gateway 实现使用；策略代码一律走 Gateway.BeginBatch。
func NewBatch() *Batch {
	return &Batch{ID: uuid.NewString()}
}

func (b *Batch) PlaceBuy(price, quoteAmount float64) {
	b.ops = append(b.ops, Op{Kind: OpPlaceBuy, Price: price, QuoteAmount: quoteAmount})
}

func (b *Batch) PlaceSell(price, quoteAmount float64) {
	b.ops = append(b.ops, Op{Kind: OpPlaceSell, Price: price, QuoteAmount: quoteAmount})
}

func (b *Batch) Cancel(orders ...*domain.Order) {
	for _, o := range orders {
		if o != nil && !o.IsVirtual() {
			b.ops = append(b.ops, Op{Kind: OpCancel, OrderID: o.ID})
		}
	}
}

// Ops returns the recorded operations in order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Empty reports whether the batch carries no operations.
func (b *Batch) Empty() bool { return b == nil || len(b.ops) == 0 }

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// BatchResult 原子广播的结果：按记录顺序返回创建的订单（取消操作对应 nil）。
type BatchResult struct {
	Created []*domain.Order
}
