package ledger

import (
	"fmt"
	"time"
)

// ErrorKind 账本错误的封闭分类。重试判断只看 Kind，绝不解析错误文本。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// transient — recovered locally by Retry
	KindStaleBalance // balance snapshot raced a fill
	KindExpiry       // clock skew / tx expiration mismatch
	KindNodeLag      // node temporarily behind or unavailable

	// unretryable — current maintenance pass aborts without side effects
	KindInsufficientFee // not enough fee-asset balance
	KindUnknownOrder    // cancel of an id the ledger does not know
)

func (k ErrorKind) String() string {
	switch k {
	case KindStaleBalance:
		return "stale_balance"
	case KindExpiry:
		return "expiry"
	case KindNodeLag:
		return "node_lag"
	case KindInsufficientFee:
		return "insufficient_fee"
	case KindUnknownOrder:
		return "unknown_order"
	}
	return "unknown"
}

// Transient reports whether Retry may recover this kind.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindStaleBalance, KindExpiry, KindNodeLag:
		return true
	}
	return false
}

// backoff 按错误类别缩放的短暂休眠
func (k ErrorKind) backoff() time.Duration {
	switch k {
	case KindStaleBalance:
		return 500 * time.Millisecond
	case KindExpiry:
		return 2 * time.Second
	case KindNodeLag:
		return 5 * time.Second
	}
	return time.Second
}

// Error 携带分类的账本错误
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ledger: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("ledger: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from any error chain.
func KindOf(err error) ErrorKind {
	for err != nil {
		if le, ok := err.(*Error); ok {
			return le.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindUnknown
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

func wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
