package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orb/internal/config"
	"orb/internal/market"
	"orb/internal/signal"
)

// Advisor 对外提供即时建议：给定决策时刻跑一遍与回测完全相同的
// 信号链路。线上线下共用一条路径，回测过的行为就是线上的行为。
type Advisor struct {
	feed *market.Feed
	gen  *signal.Generator
}

func NewAdvisor(feed *market.Feed) (*Advisor, error) {
	if feed == nil {
		return nil, fmt.Errorf("candle feed 不能为空")
	}
	return &Advisor{feed: feed, gen: signal.NewGenerator()}, nil
}

// Recommend 为 symbol 在 now（Unix ms，<=0 取当前时间）生成建议。
// 先把 [now-warmup, now] 的本地数据补齐，再交给信号链。
func (a *Advisor) Recommend(ctx context.Context, symbol, timeframe string, strategy config.StrategyConfig, now int64) (signal.Recommendation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return signal.Recommendation{}, fmt.Errorf("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return signal.Recommendation{}, err
	}
	if err := strategy.Validate(); err != nil {
		return signal.Recommendation{}, err
	}
	if now <= 0 {
		now = time.Now().UnixMilli()
	}
	loadStart := now - warmupMillis
	if _, err := a.feed.Ensure(ctx, symbol, tf, loadStart, now); err != nil {
		return signal.Recommendation{}, err
	}
	candles, err := a.feed.Load(ctx, symbol, tf, loadStart, now)
	if err != nil {
		return signal.Recommendation{}, err
	}
	return a.gen.Recommend(signal.DecisionContext{Now: now, Symbol: symbol, Candles: candles}, strategy)
}
