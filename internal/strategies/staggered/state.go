package staggered

import (
	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/pkg/persistence"
)

// workerState 镜像到持久化存储的 worker 状态。虚拟订单重启后从这里恢复，
// 不重新计算（除非存储为空）。
type workerState struct {
	VirtualOrders []*domain.Order `json:"virtual_orders"`
	Bootstrapping bool            `json:"bootstrapping"`
	// 最近三次空闲余额快照（只用于检测“什么都没变”）
	BaseHistory  []float64 `json:"base_balance_history"`
	QuoteHistory []float64 `json:"quote_balance_history"`
	// CheckIntervalSec 自适应检查间隔（秒）
	CheckIntervalSec int `json:"check_interval_sec"`
	// OldCenterPrice 上次记账用的中心价（利润/遥测簿记）
	OldCenterPrice float64 `json:"old_center_price"`
}

const historyDepth = 3

// pushHistory appends a snapshot to a length-3 ring.
func pushHistory(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > historyDepth {
		hist = hist[len(hist)-historyDepth:]
	}
	return hist
}

// historyFlat reports whether the ring is full and every entry matches the
// first within the precision tolerance.
func historyFlat(hist []float64, precision int) bool {
	if len(hist) < historyDepth {
		return false
	}
	for _, v := range hist[1:] {
		if !domain.AmountsEqual(v, hist[0], precision) {
			return false
		}
	}
	return true
}

// loadState restores the persisted mirror; an empty store yields a fresh
// bootstrapping state.
func loadState(store persistence.Store) (workerState, error) {
	var st workerState
	err := store.Load(&st)
	if err == persistence.ErrNotExists {
		return workerState{Bootstrapping: true}, nil
	}
	if err != nil {
		return workerState{}, err
	}
	return st, nil
}
