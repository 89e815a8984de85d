// Package risk 负责仓位规模与风险归一化盈亏。
package risk

import (
	"errors"
	"fmt"
	"math"

	"orb/internal/config"
)

// ErrInvalidRecommendation 表示入场/止损参数无法用于仓位计算
// （例如两者相等导致除零）。
var ErrInvalidRecommendation = errors.New("invalid recommendation")

// QuantityStep 为仓位数量的最小步进，低于一步按零处理。
// 对应主流合约交易所的数量精度；资金不足时 position 自然落到 0。
const QuantityStep = 0.001

// Sizing 是一次仓位计算的结果。
type Sizing struct {
	PositionSize  float64 `json:"position_size"`      // 基础币数量，已按步进取整
	EffectiveRisk float64 `json:"effective_risk_usdt"` // 实际承担的美元风险
	Notional      float64 `json:"notional_usdt"`
	LeverageBound bool    `json:"leverage_bound"` // 杠杆上限是否生效
}

// Feasible 表示仓位非零、可以开仓。
func (s Sizing) Feasible() bool { return s.PositionSize > 0 }

// Size 将入场/止损价换算为可执行仓位。
//
//	raw = capital*risk_per_trade/|entry-stop|   名义风险对应的仓位
//	max = capital*leverage/entry                保证金硬上限
//	size = stepFloor(min(raw, max))，下限为 0
//
// 不变量：size*entry <= capital*leverage 恒成立。
// size == 0 属于正常的资金不可行跳过，不是错误。
func Size(entry, stop float64, cfg config.StrategyConfig) (Sizing, error) {
	if entry <= 0 || stop <= 0 {
		return Sizing{}, fmt.Errorf("%w: non-positive entry %.8f or stop %.8f", ErrInvalidRecommendation, entry, stop)
	}
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return Sizing{}, fmt.Errorf("%w: entry equals stop at %.8f", ErrInvalidRecommendation, entry)
	}
	capital := cfg.InitialCapital
	raw := capital * cfg.RiskPerTrade / dist
	maxSize := capital * cfg.Leverage / entry
	size := raw
	bound := false
	if maxSize < size {
		size = maxSize
		bound = true
	}
	size = stepFloor(size)
	if size <= 0 {
		return Sizing{}, nil
	}
	return Sizing{
		PositionSize:  size,
		EffectiveRisk: dist * size,
		Notional:      entry * size,
		LeverageBound: bound,
	}, nil
}

func stepFloor(size float64) float64 {
	if size <= 0 {
		return 0
	}
	steps := math.Floor(size/QuantityStep + 1e-9)
	return steps * QuantityStep
}
