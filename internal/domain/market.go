package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Market 每次运行期间不可变的交易对描述。
// Precision 定义了资产最小可表示步长（10^-precision）。
type Market struct {
	Symbol         string `json:"symbol" yaml:"symbol"` // e.g. "HERTZ/BTS"
	BaseSymbol     string `json:"base_symbol" yaml:"base_symbol"`
	QuoteSymbol    string `json:"quote_symbol" yaml:"quote_symbol"`
	BasePrecision  int    `json:"base_precision" yaml:"base_precision"`
	QuotePrecision int    `json:"quote_precision" yaml:"quote_precision"`
	FeeAsset       string `json:"fee_asset" yaml:"fee_asset"`
}

func (m Market) Validate() error {
	if m.BaseSymbol == "" || m.QuoteSymbol == "" {
		return fmt.Errorf("market %q: base/quote symbols are required", m.Symbol)
	}
	if m.BasePrecision < 0 || m.BasePrecision > 18 || m.QuotePrecision < 0 || m.QuotePrecision > 18 {
		return fmt.Errorf("market %q: precision out of range", m.Symbol)
	}
	return nil
}

// BaseStep 最小 base 步长
func (m Market) BaseStep() float64 { return math.Pow(10, -float64(m.BasePrecision)) }

// QuoteStep 最小 quote 步长
func (m Market) QuoteStep() float64 { return math.Pow(10, -float64(m.QuotePrecision)) }

// PrecisionFor returns the decimal precision of the asset a given side locks.
func (m Market) PrecisionFor(side Side) int {
	if side == SideBuy {
		return m.BasePrecision
	}
	return m.QuotePrecision
}

// RoundAmount truncates an amount to the given asset precision. Truncation is
// done through decimal so binary float dust never leaks into order amounts.
func RoundAmount(x float64, precision int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(x).Truncate(int32(precision)).Float64()
	return f
}

// AmountsEqual 在资产精度容差内比较两个数量。
func AmountsEqual(a, b float64, precision int) bool {
	return math.Abs(a-b) <= math.Pow(10, -float64(precision))
}
