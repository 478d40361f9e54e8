package staggered

import (
	"fmt"
	"time"

	"github.com/dexbot/goladder/internal/domain"
	"github.com/dexbot/goladder/internal/ladder"
)

const ID = "staggered"

// depthHeadroom: real orders per side may run up to OperationalDepth +
// depthHeadroom before the furthest one is demoted to virtual. Not
// configurable; demoting on the exact boundary would thrash.
const depthHeadroom = 5

// defaultPartialFillThreshold: an order filled beyond this fraction is
// treated as partially filled and replaced at full size.
const defaultPartialFillThreshold = 0.8

// Config 一个 staggered worker 的全部外部配置（由外层配置层提供，运行期只读）。
type Config struct {
	Name    string        `yaml:"name"`
	Account string        `yaml:"account"`
	Market  domain.Market `yaml:"market"`

	Mode         string  `yaml:"mode"` // mountain | valley | neutral | buy_slope | sell_slope
	TargetSpread float64 `yaml:"target_spread"`
	Increment    float64 `yaml:"increment"`
	LowerBound   float64 `yaml:"lower_bound"`
	UpperBound   float64 `yaml:"upper_bound"`

	// OperationalDepth 每侧保持的真实订单数下限（上限为 +depthHeadroom）
	OperationalDepth int `yaml:"operational_depth"`

	// CenterPrice 手动中心价；DynamicCenter 时改用订单簿推导值
	CenterPrice   float64 `yaml:"center_price"`
	DynamicCenter bool    `yaml:"dynamic_center"`

	InstantFillAllowed   bool `yaml:"instant_fill_allowed"`
	FallbackLogicEnabled bool `yaml:"fallback_logic_enabled"`

	// PartialFillThreshold 最近档位对的部分成交阈值（0 = 默认 0.8）
	PartialFillThreshold float64 `yaml:"partial_fill_threshold"`

	// FeePct 买卖双向手续费率之和，用于配置不变量校验
	FeePct float64 `yaml:"fee_pct"`

	MinCheckInterval time.Duration `yaml:"min_check_interval"`
	MaxCheckInterval time.Duration `yaml:"max_check_interval"`

	// 可选止损：中心价越出边界超过该比例时撤掉全部真实订单并禁用 worker
	StopLossEnabled bool    `yaml:"stop_loss_enabled"`
	StopLossMargin  float64 `yaml:"stop_loss_margin"`
}

// withDefaults returns a copy with zero values filled in.
func (c Config) withDefaults() Config {
	if c.PartialFillThreshold <= 0 || c.PartialFillThreshold >= 1 {
		c.PartialFillThreshold = defaultPartialFillThreshold
	}
	if c.MinCheckInterval <= 0 {
		c.MinCheckInterval = 8 * time.Second
	}
	if c.MaxCheckInterval <= 0 {
		c.MaxCheckInterval = 10 * time.Minute
	}
	if c.StopLossEnabled && c.StopLossMargin <= 0 {
		c.StopLossMargin = 0.5
	}
	return c
}

// Validate 构造期一次性校验；不合法的 worker 永不启动，绝不开始交易。
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("worker name is required")
	}
	if c.Account == "" {
		return fmt.Errorf("%s: account is required", c.Name)
	}
	if err := c.Market.Validate(); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	if _, err := ladder.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	if c.Increment <= 0 {
		return fmt.Errorf("%s: increment must be positive", c.Name)
	}
	if c.TargetSpread <= c.Increment+c.FeePct {
		return fmt.Errorf("%s: target_spread %.6f must exceed increment+fees %.6f",
			c.Name, c.TargetSpread, c.Increment+c.FeePct)
	}
	if c.LowerBound <= 0 || c.UpperBound <= c.LowerBound {
		return fmt.Errorf("%s: need 0 < lower_bound < upper_bound", c.Name)
	}
	if c.OperationalDepth < 2 {
		return fmt.Errorf("%s: operational_depth must be >= 2", c.Name)
	}
	if !c.DynamicCenter && c.CenterPrice <= 0 {
		return fmt.Errorf("%s: center_price required unless dynamic_center", c.Name)
	}
	return nil
}
