package domain

// BalanceSnapshot 每次维护循环重新计算的余额视图。
//
//	free  = account balance - fee reserve - Σ(virtual orders on that side)
//	total = free + Σ(real orders + virtual orders on that side)
type BalanceSnapshot struct {
	BaseFree   float64 `json:"base_free"`
	QuoteFree  float64 `json:"quote_free"`
	BaseTotal  float64 `json:"base_total"`
	QuoteTotal float64 `json:"quote_total"`
}

// Free 返回指定方向可用余额（买方锁 base，卖方锁 quote）。
func (b BalanceSnapshot) Free(side Side) float64 {
	if side == SideBuy {
		return b.BaseFree
	}
	return b.QuoteFree
}

// Total 返回指定方向总余额。
func (b BalanceSnapshot) Total(side Side) float64 {
	if side == SideBuy {
		return b.BaseTotal
	}
	return b.QuoteTotal
}

// Changed reports whether either free balance differs beyond the given
// asset-precision tolerances. Used by the idle backoff detector.
func (b BalanceSnapshot) Changed(prev BalanceSnapshot, basePrecision, quotePrecision int) bool {
	return !AmountsEqual(b.BaseFree, prev.BaseFree, basePrecision) ||
		!AmountsEqual(b.QuoteFree, prev.QuoteFree, quotePrecision)
}
