// Package sizing 根据跟单策略计算每笔跟单的美元金额。
package sizing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy 跟单策略
type Strategy string

const (
	StrategyPercentage Strategy = "PERCENTAGE"
	StrategyFixed      Strategy = "FIXED"
	StrategyAdaptive   Strategy = "ADAPTIVE"
)

// BalanceSafetyMargin 下单金额最多占可用余额的比例
const BalanceSafetyMargin = 0.99

// Tier 按交易员订单金额分档的倍数，区间为 [Min, Max)，Max<=0 表示无上限
type Tier struct {
	Min        float64 `yaml:"min" json:"min"`
	Max        float64 `yaml:"max" json:"max"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// StrategyConfig 跟单策略配置
type StrategyConfig struct {
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	// CopySize PERCENTAGE/ADAPTIVE 为百分比，FIXED 为美元
	CopySize float64 `yaml:"copy_size" json:"copy_size"`

	AdaptiveMinPercent float64 `yaml:"adaptive_min_percent" json:"adaptive_min_percent"`
	AdaptiveMaxPercent float64 `yaml:"adaptive_max_percent" json:"adaptive_max_percent"`
	AdaptiveThreshold  float64 `yaml:"adaptive_threshold_usd" json:"adaptive_threshold_usd"`

	MaxOrderSizeUSD    float64 `yaml:"max_order_size_usd" json:"max_order_size_usd"`
	MaxPositionSizeUSD float64 `yaml:"max_position_size_usd" json:"max_position_size_usd"`
	MinOrderSizeUSD    float64 `yaml:"min_order_size_usd" json:"min_order_size_usd"`

	TradeMultiplier float64 `yaml:"trade_multiplier" json:"trade_multiplier"`
	Tiers           []Tier  `yaml:"tiers" json:"tiers"`
}

// DefaultStrategyConfig 默认：按交易员金额 10% 跟单，单笔最多 $100
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Strategy:           StrategyPercentage,
		CopySize:           10,
		AdaptiveMinPercent: 5,
		AdaptiveMaxPercent: 20,
		AdaptiveThreshold:  500,
		MaxOrderSizeUSD:    100,
		MinOrderSizeUSD:    1,
		TradeMultiplier:    1,
	}
}

// Validate 检查配置
func (c StrategyConfig) Validate() error {
	switch c.Strategy {
	case StrategyPercentage, StrategyFixed, StrategyAdaptive:
	default:
		return fmt.Errorf("未知的跟单策略: %q", c.Strategy)
	}
	if c.CopySize <= 0 {
		return fmt.Errorf("copy_size 必须大于 0")
	}
	if c.Strategy == StrategyAdaptive && c.AdaptiveThreshold <= 0 {
		return fmt.Errorf("ADAPTIVE 策略需要 adaptive_threshold_usd > 0")
	}
	for i, t := range c.Tiers {
		if t.Multiplier < 0 || (t.Max > 0 && t.Max <= t.Min) {
			return fmt.Errorf("tiers[%d] 区间或倍数无效", i)
		}
	}
	return nil
}

// OrderCalculation 计算结果，金额为 0 时 Reasoning 说明原因
type OrderCalculation struct {
	FinalAmount  float64
	BelowMinimum bool
	Reasoning    string
}

// Multiplier 返回交易员订单金额对应的倍数
func Multiplier(cfg StrategyConfig, traderUSD float64) float64 {
	for _, t := range cfg.Tiers {
		if traderUSD >= t.Min && (t.Max <= 0 || traderUSD < t.Max) {
			return t.Multiplier
		}
	}
	if cfg.TradeMultiplier > 0 {
		return cfg.TradeMultiplier
	}
	return 1
}

// Calculate 纯函数：相同输入必然得到相同结果
func Calculate(cfg StrategyConfig, traderUSD, ownBalance, positionValue float64) OrderCalculation {
	var steps []string
	amount := decimal.NewFromFloat(traderUSD)

	switch cfg.Strategy {
	case StrategyFixed:
		amount = decimal.NewFromFloat(cfg.CopySize)
		steps = append(steps, fmt.Sprintf("固定 $%.2f", cfg.CopySize))
	case StrategyAdaptive:
		pct := adaptivePercent(cfg, traderUSD)
		amount = amount.Mul(pct).Div(decimal.NewFromInt(100))
		steps = append(steps, fmt.Sprintf("自适应 %s%% × $%.2f", pct.StringFixed(2), traderUSD))
	default:
		amount = amount.Mul(decimal.NewFromFloat(cfg.CopySize)).Div(decimal.NewFromInt(100))
		steps = append(steps, fmt.Sprintf("%.2f%% × $%.2f", cfg.CopySize, traderUSD))
	}

	if m := Multiplier(cfg, traderUSD); m != 1 {
		amount = amount.Mul(decimal.NewFromFloat(m))
		steps = append(steps, fmt.Sprintf("倍数 %.2fx", m))
	}
	steps = append(steps, fmt.Sprintf("= $%s", amount.StringFixed(2)))

	if cfg.MaxOrderSizeUSD > 0 {
		maxOrder := decimal.NewFromFloat(cfg.MaxOrderSizeUSD)
		if amount.GreaterThan(maxOrder) {
			amount = maxOrder
			steps = append(steps, fmt.Sprintf("单笔上限 $%.2f", cfg.MaxOrderSizeUSD))
		}
	}

	if cfg.MaxPositionSizeUSD > 0 {
		room := decimal.NewFromFloat(cfg.MaxPositionSizeUSD).Sub(decimal.NewFromFloat(positionValue))
		if !room.IsPositive() {
			steps = append(steps, fmt.Sprintf("持仓已达上限 $%.2f", cfg.MaxPositionSizeUSD))
			return OrderCalculation{Reasoning: strings.Join(steps, ", ")}
		}
		if amount.GreaterThan(room) {
			amount = room
			steps = append(steps, fmt.Sprintf("持仓上限剩余 $%s", room.StringFixed(2)))
		}
	}

	available := decimal.NewFromFloat(ownBalance).Mul(decimal.NewFromFloat(BalanceSafetyMargin))
	if amount.GreaterThan(available) {
		amount = available
		steps = append(steps, fmt.Sprintf("余额限制 $%s", available.StringFixed(2)))
	}

	amount = amount.RoundDown(2)
	minOrder := cfg.MinOrderSizeUSD
	if minOrder <= 0 {
		minOrder = 1
	}
	if amount.LessThan(decimal.NewFromFloat(minOrder)) {
		steps = append(steps, fmt.Sprintf("低于最小下单额 $%.2f", minOrder))
		return OrderCalculation{BelowMinimum: true, Reasoning: strings.Join(steps, ", ")}
	}

	final, _ := amount.Float64()
	steps = append(steps, fmt.Sprintf("最终 $%.2f", final))
	return OrderCalculation{FinalAmount: final, Reasoning: strings.Join(steps, ", ")}
}

// adaptivePercent 小单用 AdaptiveMaxPercent，随金额增大线性降到 AdaptiveMinPercent
func adaptivePercent(cfg StrategyConfig, traderUSD float64) decimal.Decimal {
	maxPct := decimal.NewFromFloat(cfg.AdaptiveMaxPercent)
	minPct := decimal.NewFromFloat(cfg.AdaptiveMinPercent)
	if cfg.AdaptiveThreshold <= 0 {
		return decimal.NewFromFloat(cfg.CopySize)
	}
	ratio := decimal.NewFromFloat(traderUSD).Div(decimal.NewFromFloat(cfg.AdaptiveThreshold))
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	return maxPct.Sub(maxPct.Sub(minPct).Mul(ratio))
}
