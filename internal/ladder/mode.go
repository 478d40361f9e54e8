// Package ladder holds the pure price/size geometry of a staggered order
// ladder. No I/O happens here; everything is a function of the market, the
// configured mode and the neighbouring orders.
package ladder

import (
	"fmt"

	"github.com/dexbot/goladder/internal/domain"
)

// Mode 阶梯形态。决定相邻档位之间的数量比例与资金增长方向。
type Mode string

const (
	ModeMountain  Mode = "mountain"
	ModeValley    Mode = "valley"
	ModeNeutral   Mode = "neutral"
	ModeBuySlope  Mode = "buy_slope"
	ModeSellSlope Mode = "sell_slope"
)

// ParseMode validates a config string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMountain, ModeValley, ModeNeutral, ModeBuySlope, ModeSellSlope:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown ladder mode %q", s)
}

// RatioRule 相邻档位（i 靠近中心，i+1 远离中心）之间必须保持的比例规则。
// 这是所有下单/调仓函数共同维护的唯一几何不变量。
type RatioRule int

const (
	// KeepQuote keeps the receive-side amount equal between two adjacent
	// levels (mountain shape: locked amounts shrink away from center).
	KeepQuote RatioRule = iota
	// KeepBase keeps the locked amount equal between two adjacent levels
	// (valley shape).
	KeepBase
	// ScaleSqrt scales the locked amount by sqrt(1+increment) per level
	// (neutral shape, geometric mean of the other two).
	ScaleSqrt
)

// GrowDirection 多余资金加仓时从哪一端开始抬升档位。
type GrowDirection int

const (
	GrowFromCenter GrowDirection = iota
	GrowFromEdge
)

// AdjacentRatio returns the ratio rule for one side of the book. Slope modes
// are one half valley, one half mountain.
func AdjacentRatio(mode Mode, side domain.Side) RatioRule {
	switch mode {
	case ModeMountain:
		return KeepQuote
	case ModeValley:
		return KeepBase
	case ModeNeutral:
		return ScaleSqrt
	case ModeBuySlope:
		if side == domain.SideBuy {
			return KeepBase
		}
		return KeepQuote
	case ModeSellSlope:
		if side == domain.SideBuy {
			return KeepQuote
		}
		return KeepBase
	}
	return KeepBase
}

// GrowFrom returns where increase_order_sizes starts walking the ladder.
func GrowFrom(mode Mode, side domain.Side) GrowDirection {
	switch AdjacentRatio(mode, side) {
	case KeepQuote: // mountain half
		return GrowFromCenter
	case KeepBase: // valley half
		return GrowFromEdge
	default: // neutral
		return GrowFromCenter
	}
}
