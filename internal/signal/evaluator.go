package signal

import "orb/internal/config"

// Evaluator 是单条策略的求值器。返回 nil 表示本策略不触发，
// 由链上的下一条策略接手；返回非 nil 即为最终建议。
// 实现必须是输入的纯函数：相同 (ctx, cfg) 必须得到相同结果。
type Evaluator interface {
	Name() string
	Evaluate(ctx DecisionContext, cfg config.StrategyConfig) *Recommendation
}
