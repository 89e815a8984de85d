package signal

import (
	"fmt"

	"orb/internal/config"
	"orb/internal/market"
)

// ORBEvaluator 实现开盘区间突破：取当日开盘后 range_minutes 的
// 高低点作为区间，最近一根有效 K 线收在区间外即给出方向建议。
type ORBEvaluator struct{}

func (ORBEvaluator) Name() string { return "orb" }

func (ORBEvaluator) Evaluate(ctx DecisionContext, cfg config.StrategyConfig) *Recommendation {
	dayStart := market.DayStart(ctx.Now)
	rangeEnd := dayStart + int64(cfg.ORB.RangeMinutes)*60_000

	var rangeHigh, rangeLow float64
	rangeCount := 0
	var latest *market.Candle
	for i := range ctx.Candles {
		c := &ctx.Candles[i]
		if c.OpenTime < dayStart {
			continue
		}
		if c.OpenTime < rangeEnd {
			if rangeCount == 0 || c.High > rangeHigh {
				rangeHigh = c.High
			}
			if rangeCount == 0 || c.Low < rangeLow {
				rangeLow = c.Low
			}
			rangeCount++
			continue
		}
		// 区间之后最新的一根（序列升序，最后命中者即最新）
		if c.CloseTime >= rangeEnd {
			latest = c
		}
	}
	if rangeCount == 0 || latest == nil {
		return nil // 区间未形成或尚无区间外 K 线
	}
	if decimalLTE(rangeHigh, rangeLow) {
		return nil // 退化区间，高低点重合
	}

	risk := rangeHigh - rangeLow
	switch {
	case decimalGT(latest.Close, rangeHigh):
		return &Recommendation{
			Symbol:     ctx.Symbol,
			Direction:  DirectionLong,
			EntryPrice: rangeHigh,
			StopLoss:   rangeLow,
			TakeProfit: rangeHigh + cfg.ORB.TakeProfitR*risk,
			Confidence: 0.75,
			Source:     SourceORB,
			Note:       fmt.Sprintf("close %.4f above opening range high %.4f", latest.Close, rangeHigh),
		}
	case decimalLT(latest.Close, rangeLow):
		return &Recommendation{
			Symbol:     ctx.Symbol,
			Direction:  DirectionShort,
			EntryPrice: rangeLow,
			StopLoss:   rangeHigh,
			TakeProfit: rangeLow - cfg.ORB.TakeProfitR*risk,
			Confidence: 0.75,
			Source:     SourceORB,
			Note:       fmt.Sprintf("close %.4f below opening range low %.4f", latest.Close, rangeLow),
		}
	default:
		return nil
	}
}
