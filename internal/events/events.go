package events

import "time"

// Kind 上游订阅复用的三类事件
type Kind int

const (
	KindBlock Kind = iota
	KindMarket
	KindAccount
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindMarket:
		return "market"
	case KindAccount:
		return "account"
	}
	return "?"
}

// Event 单一上游订阅按到达顺序投递的事件。
// Market/Account 为空表示广播（如新块）。
type Event struct {
	Kind      Kind
	Height    uint64 // block height, if Kind == KindBlock
	Market    string // market symbol, if Kind == KindMarket
	Account   string // account name, if Kind == KindAccount
	Timestamp time.Time
}

// Worker 是事件派发的目标：核心只暴露普通方法，不注册闭包。
type Worker interface {
	Name() string
	MarketSymbol() string
	Account() string
	Disabled() bool

	OnBlock(height uint64)
	OnMarketUpdate()
	OnAccountUpdate()
}
