package signal

import (
	"fmt"
	"math"

	"orb/internal/config"
	"orb/internal/market"

	talib "github.com/markcheno/go-talib"
)

// EMAFallbackEvaluator 在 ORB 未触发时兜底：趋势成立且价格回踩到
// EMA 一个 ATR 以内时顺势入场。
//
// 指标只允许使用收盘时间严格 <= now 的 K 线——入场过滤的 5 分钟
// 容差不参与指标计算，否则 EMA/ATR 会随行情延迟漂移。
type EMAFallbackEvaluator struct{}

func (EMAFallbackEvaluator) Name() string { return "ema_fallback" }

func (EMAFallbackEvaluator) Evaluate(ctx DecisionContext, cfg config.StrategyConfig) *Recommendation {
	strict := market.StrictSlice(ctx.Candles, ctx.Now)
	p := cfg.EMAFallback
	minBars := p.EMAPeriod
	if p.ATRPeriod+1 > minBars {
		minBars = p.ATRPeriod + 1
	}
	if len(strict) < minBars {
		// 样本不足就拒绝计算，宁可空仓也不要一条错的 EMA。
		return nil
	}

	closes := make([]float64, len(strict))
	highs := make([]float64, len(strict))
	lows := make([]float64, len(strict))
	for i, c := range strict {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	emaArr := talib.Ema(closes, p.EMAPeriod)
	atrArr := talib.Atr(highs, lows, closes, p.ATRPeriod)

	last := len(strict) - 1
	ema := emaArr[last]
	atr := atrArr[last]
	if ema <= 0 || atr <= 0 {
		return nil
	}

	trend := classifyTrend(closes, emaArr, p.TrendWindow)
	if trend == DirectionNone {
		return nil
	}
	price := closes[last]
	if math.Abs(price-ema) > p.PullbackATR*atr {
		return nil // 未回踩到位
	}

	var stop, target float64
	if trend == DirectionLong {
		stop = price - atr
		target = price + p.TakeProfitR*atr
	} else {
		stop = price + atr
		target = price - p.TakeProfitR*atr
	}
	if stop <= 0 || decimalCompare(price, stop) == 0 {
		return nil
	}
	return &Recommendation{
		Symbol:     ctx.Symbol,
		Direction:  trend,
		EntryPrice: price,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: 0.55,
		Source:     SourceEMAFallback,
		Note:       fmt.Sprintf("pullback to EMA%d within %.2fxATR, trend %s", p.EMAPeriod, p.PullbackATR, trend),
	}
}

// classifyTrend 要求最近 window 根 K 线收盘全部位于 EMA 同侧，
// 且 EMA 单调向该侧推进，才视为趋势成立。
func classifyTrend(closes, ema []float64, window int) Direction {
	n := len(closes)
	if window < 1 || n < window+1 {
		return DirectionNone
	}
	up, down := true, true
	for i := n - window; i < n; i++ {
		if ema[i] == 0 || ema[i-1] == 0 {
			return DirectionNone
		}
		if closes[i] <= ema[i] || ema[i] <= ema[i-1] {
			up = false
		}
		if closes[i] >= ema[i] || ema[i] >= ema[i-1] {
			down = false
		}
	}
	switch {
	case up:
		return DirectionLong
	case down:
		return DirectionShort
	default:
		return DirectionNone
	}
}
