package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/pkg/ratelimit"
)

// Client 基于 HTTP RPC 的账本网关实现。
// 只负责下单/撤单/查询与批量广播；签名由节点侧的钱包会话完成（见配置）。
type Client struct {
	http    *resty.Client
	market  domain.Market
	account string
	limiter *ratelimit.TokenBucket
	log     *logrus.Entry
}

type Config struct {
	Endpoint string        `yaml:"endpoint"`
	Account  string        `yaml:"account"`
	Timeout  time.Duration `yaml:"timeout"`
	// RPCRateLimit 每秒允许的 RPC 调用数（0 = 默认 10）
	RPCRateLimit int `yaml:"rpc_rate_limit"`
}

func NewClient(cfg Config, market domain.Market) *Client {
	host := strings.TrimSuffix(cfg.Endpoint, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rate := cfg.RPCRateLimit
	if rate <= 0 {
		rate = 10
	}
	// resty 自动读取环境变量代理配置（HTTP_PROXY / HTTPS_PROXY）
	hc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{
		http:    hc,
		market:  market,
		account: cfg.Account,
		limiter: ratelimit.NewTokenBucket(rate, rate),
		log:     logrus.WithField("component", "ledger").WithField("account", cfg.Account),
	}
}

// ---- wire types ----

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rpcEnvelope struct {
	Error *rpcError `json:"error,omitempty"`
}

type wireOrder struct {
	ID          string  `json:"id"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	QuoteAmount float64 `json:"quote_amount"`
	ForSale     float64 `json:"for_sale"`
}

// kindFromCode 按节点错误码映射到封闭错误类别
func kindFromCode(code string) ErrorKind {
	switch code {
	case "stale_balance":
		return KindStaleBalance
	case "tx_expired", "clock_skew":
		return KindExpiry
	case "node_lag", "unavailable":
		return KindNodeLag
	case "insufficient_fee":
		return KindInsufficientFee
	case "unknown_order":
		return KindUnknownOrder
	}
	return KindUnknown
}

func (c *Client) check(op string, resp *resty.Response, env *rpcEnvelope, err error) error {
	if err != nil {
		return wrap(KindNodeLag, op, err)
	}
	if env != nil && env.Error != nil {
		return wrap(kindFromCode(env.Error.Code), op, errors.New(env.Error.Message))
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return wrap(KindNodeLag, op, errors.Errorf("status %d", resp.StatusCode()))
	}
	if resp.IsError() {
		return wrap(KindUnknown, op, errors.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// toDomain converts a wire order into the engine's normalized orientation
// (sell prices arrive already base-per-quote; amounts are quote-side).
func (c *Client) toDomain(w wireOrder) *domain.Order {
	side := domain.SideBuy
	if w.Side == "sell" {
		side = domain.SideSell
	}
	var locked, received float64
	if side == domain.SideBuy {
		received = w.QuoteAmount
		locked = w.Price * w.QuoteAmount
	} else {
		locked = w.QuoteAmount
		received = w.Price * w.QuoteAmount
	}
	o := &domain.Order{
		ID:          w.ID,
		Side:        side,
		Price:       w.Price,
		BaseAmount:  locked,
		QuoteAmount: received,
		ForSale:     w.ForSale,
	}
	if o.ForSale <= 0 || o.ForSale > o.BaseAmount {
		o.ForSale = o.BaseAmount
	}
	return o
}

// ---- Gateway impl ----

func (c *Client) place(ctx context.Context, side domain.Side, price, quoteAmount float64) (*domain.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		rpcEnvelope
		Order *wireOrder `json:"order"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"account":      c.account,
			"market":       c.market.Symbol,
			"side":         string(side),
			"price":        price,
			"quote_amount": quoteAmount,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/orders")
	if err := c.check("place_"+string(side), resp, &out.rpcEnvelope, err); err != nil {
		return nil, err
	}
	if out.Order == nil {
		// the node accepted but matched instantly; nothing rests on the book
		return nil, nil
	}
	return c.toDomain(*out.Order), nil
}

func (c *Client) PlaceBuy(ctx context.Context, price, quoteAmount float64) (*domain.Order, error) {
	return c.place(ctx, domain.SideBuy, price, quoteAmount)
}

func (c *Client) PlaceSell(ctx context.Context, price, quoteAmount float64) (*domain.Order, error) {
	return c.place(ctx, domain.SideSell, price, quoteAmount)
}

// Cancel attempts one batched cancel first and falls back to one-by-one on
// partial failure. Success means every order ended up cancelled; an id the
// ledger no longer knows counts as cancelled.
func (c *Client) Cancel(ctx context.Context, orders []*domain.Order) error {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o != nil && !o.IsVirtual() {
			ids = append(ids, o.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := c.cancelIDs(ctx, ids); err == nil {
		return nil
	}
	var failed []string
	for _, id := range ids {
		if err := c.cancelIDs(ctx, []string{id}); err != nil {
			if KindOf(err) == KindUnknownOrder {
				continue // already gone
			}
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return wrap(KindUnknown, "cancel", errors.Errorf("%d of %d orders not cancelled", len(failed), len(ids)))
	}
	return nil
}

func (c *Client) cancelIDs(ctx context.Context, ids []string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var out rpcEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"account": c.account, "ids": ids}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/orders/cancel")
	return c.check("cancel", resp, &out, err)
}

func (c *Client) OwnOrders(ctx context.Context) ([]*domain.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		rpcEnvelope
		Orders []wireOrder `json:"orders"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("account", c.account).
		SetQueryParam("market", c.market.Symbol).
		SetResult(&out).
		SetError(&out).
		Get("/v1/orders")
	if err := c.check("own_orders", resp, &out.rpcEnvelope, err); err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(out.Orders))
	for _, w := range out.Orders {
		orders = append(orders, c.toDomain(w))
	}
	return orders, nil
}

func (c *Client) MarketOrders(ctx context.Context, depth int) ([]*domain.Order, []*domain.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	var out struct {
		rpcEnvelope
		Bids []wireOrder `json:"bids"`
		Asks []wireOrder `json:"asks"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("market", c.market.Symbol).
		SetQueryParam("depth", fmt.Sprintf("%d", depth)).
		SetResult(&out).
		SetError(&out).
		Get("/v1/book")
	if err := c.check("market_orders", resp, &out.rpcEnvelope, err); err != nil {
		return nil, nil, err
	}
	bids := make([]*domain.Order, 0, len(out.Bids))
	for _, w := range out.Bids {
		bids = append(bids, c.toDomain(w))
	}
	asks := make([]*domain.Order, 0, len(out.Asks))
	for _, w := range out.Asks {
		asks = append(asks, c.toDomain(w))
	}
	domain.SortBuysDescending(bids)
	domain.SortSellsAscending(asks)
	return bids, asks, nil
}

func (c *Client) AllocatedAssets(ctx context.Context, orderIDs []string) (float64, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}
	var out struct {
		rpcEnvelope
		Base  float64 `json:"base"`
		Quote float64 `json:"quote"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"account": c.account, "ids": orderIDs}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/orders/allocated")
	if err := c.check("allocated_assets", resp, &out.rpcEnvelope, err); err != nil {
		return 0, 0, err
	}
	return out.Base, out.Quote, nil
}

func (c *Client) AccountBalances(ctx context.Context) (float64, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}
	var out struct {
		rpcEnvelope
		Balances map[string]float64 `json:"balances"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("assets", c.market.BaseSymbol+","+c.market.QuoteSymbol).
		SetResult(&out).
		SetError(&out).
		Get("/v1/accounts/" + c.account + "/balances")
	if err := c.check("account_balances", resp, &out.rpcEnvelope, err); err != nil {
		return 0, 0, err
	}
	return out.Balances[c.market.BaseSymbol], out.Balances[c.market.QuoteSymbol], nil
}

func (c *Client) OrderCreationFee(ctx context.Context, asset string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		rpcEnvelope
		Fee float64 `json:"fee"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("asset", asset).
		SetResult(&out).
		SetError(&out).
		Get("/v1/fees/order_creation")
	if err := c.check("order_creation_fee", resp, &out.rpcEnvelope, err); err != nil {
		return 0, err
	}
	return out.Fee, nil
}

func (c *Client) BeginBatch() *Batch { return NewBatch() }

// Commit broadcasts the batch atomically: either every recorded operation
// lands or none do.
func (c *Client) Commit(ctx context.Context, b *Batch) (*BatchResult, error) {
	if b.Empty() {
		return &BatchResult{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ops := make([]map[string]any, 0, b.Len())
	for _, op := range b.Ops() {
		switch op.Kind {
		case OpPlaceBuy, OpPlaceSell:
			side := "buy"
			if op.Kind == OpPlaceSell {
				side = "sell"
			}
			ops = append(ops, map[string]any{
				"type":         "place",
				"side":         side,
				"price":        op.Price,
				"quote_amount": op.QuoteAmount,
			})
		case OpCancel:
			ops = append(ops, map[string]any{"type": "cancel", "id": op.OrderID})
		}
	}
	var out struct {
		rpcEnvelope
		Orders []*wireOrder `json:"orders"` // one entry per op; null for cancels
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"account": c.account,
			"market":  c.market.Symbol,
			"batch":   b.ID,
			"ops":     ops,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/batch")
	if err := c.check("commit", resp, &out.rpcEnvelope, err); err != nil {
		return nil, err
	}
	res := &BatchResult{Created: make([]*domain.Order, len(b.ops))}
	for i := range out.Orders {
		if i >= len(res.Created) || out.Orders[i] == nil {
			continue
		}
		res.Created[i] = c.toDomain(*out.Orders[i])
	}
	return res, nil
}
