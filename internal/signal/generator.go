// Package signal 从历史 K 线生成单次交易建议。
//
// 生成器是纯函数：不做 I/O、不持有可变状态，相同的
// (now, K 线历史, 配置) 必须产出完全一致的 Recommendation，
// 这是回测可复现与 no-lookahead 测试的前提。
package signal

import (
	"fmt"

	"orb/internal/config"
	"orb/internal/market"
)

// Generator 按顺序执行策略链，取第一个非空结果。
type Generator struct {
	evaluators []Evaluator
}

// NewGenerator 构造默认策略链：ORB 优先，EMA 回踩兜底。
func NewGenerator() *Generator {
	return &Generator{
		evaluators: []Evaluator{
			ORBEvaluator{},
			EMAFallbackEvaluator{},
		},
	}
}

// NewGeneratorWith 允许自定义策略链（顺序即优先级）。
func NewGeneratorWith(evaluators ...Evaluator) *Generator {
	return &Generator{evaluators: evaluators}
}

// Recommend 为给定决策时刻生成建议。
//
// 第一步做因果过滤：收盘时间在 now+5m 之后的 K 线全部丢弃，
// 这是 lookahead 唯一的闸口；过滤后为空返回 ErrInsufficientData。
// 之后链上任何策略都只能看到过滤后的切片。
func (g *Generator) Recommend(ctx DecisionContext, cfg config.StrategyConfig) (Recommendation, error) {
	visible := market.CausalSlice(ctx.Candles, ctx.Now, market.FeedTolerance)
	if len(visible) == 0 {
		return None(ctx.Symbol), fmt.Errorf("%w: no candles at or before now=%d", market.ErrInsufficientData, ctx.Now)
	}
	filtered := DecisionContext{Now: ctx.Now, Symbol: ctx.Symbol, Candles: visible}
	for _, ev := range g.evaluators {
		if rec := ev.Evaluate(filtered, cfg); rec != nil {
			return *rec, nil
		}
	}
	return None(ctx.Symbol), nil
}
