// Package backtest 将历史 K 线 + 信号生成器推演为逐日交易台账。
//
// 单个 run 内严格串行：每一天的决策只依赖因果在前的数据。
// 多个 run 之间相互独立，由 Simulator 并行调度。
package backtest

import (
	"context"
	"errors"
	"sort"
	"strings"

	"orb/internal/logger"
	"orb/internal/market"
	"orb/internal/risk"
	"orb/internal/signal"
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// Runner 对单个 symbol/区间执行回测。
// 状态机：AwaitingDay → EvaluatingSignal → (Skipped | PositionOpen) → Resolved → AwaitingDay。
type Runner struct {
	gen *signal.Generator
	cfg RunConfig
}

func NewRunner(cfg RunConfig) *Runner {
	return &Runner{gen: signal.NewGenerator(), cfg: cfg}
}

// Run 逐日推演。candles 为已加载的只读全量序列（升序），
// 运行过程中不再发生任何 I/O。
func (r *Runner) Run(ctx context.Context, runID string, candles []market.Candle) (Result, error) {
	res := Result{}
	capital := r.cfg.Strategy.InitialCapital
	equity := capital
	entryWindowMs := int64(r.cfg.Strategy.ORB.EntryWindowMinutes) * 60_000

	skip := func(dayKey string, reason SkipReason, detail string) {
		res.Skips = append(res.Skips, SkipRecord{RunID: runID, DayKey: dayKey, Reason: reason, Detail: detail})
	}

	for day := market.DayStart(r.cfg.StartTS); day <= r.cfg.EndTS; day += dayMillis {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		dayKey := market.DayKey(day)
		dayCandles := sliceDay(candles, day, day+dayMillis)

		// 无论当天因何跳过，资金曲线都落一个持平采样点，
		// 保证曲线对每个交易日的覆盖一致。
		flatTS := day + dayMillis - 1
		if len(dayCandles) > 0 {
			flatTS = dayEnd(dayCandles)
		}
		flat := func() {
			res.Equity = append(res.Equity, EquityPoint{RunID: runID, TS: flatTS, Equity: equity})
		}

		if len(dayCandles) == 0 {
			skip(dayKey, SkipInsufficientData, "no candles for day")
			flat()
			continue
		}
		if err := market.ValidateSeries(dayCandles); err != nil {
			// 坏数据只废掉当天，绝不中断整个 run。
			logger.Warnf("[backtest] run %s day %s corrupt data: %v", runID, dayKey, err)
			skip(dayKey, SkipDataIntegrity, err.Error())
			flat()
			continue
		}

		cutoff := day + entryWindowMs
		rec, err := r.gen.Recommend(signal.DecisionContext{
			Now:     cutoff,
			Symbol:  r.cfg.Symbol,
			Candles: candles,
		}, r.cfg.Strategy)
		if err != nil {
			if errors.Is(err, market.ErrInsufficientData) {
				skip(dayKey, SkipInsufficientData, err.Error())
			} else {
				skip(dayKey, SkipDataIntegrity, err.Error())
			}
			flat()
			continue
		}
		if !rec.Directional() {
			skip(dayKey, SkipNoSignal, "")
			flat()
			continue
		}

		sizing, err := risk.Size(rec.EntryPrice, rec.StopLoss, r.cfg.Strategy)
		if err != nil {
			skip(dayKey, SkipInvalidRecommendation, err.Error())
			flat()
			continue
		}
		if !sizing.Feasible() {
			skip(dayKey, SkipCapitalInfeasible, "position size floored to zero")
			flat()
			continue
		}

		trade := r.resolveTrade(runID, dayKey, cutoff, rec, sizing, dayCandles)
		equity += trade.NetPnL
		res.Trades = append(res.Trades, trade)
		res.Equity = append(res.Equity, EquityPoint{RunID: runID, TS: trade.ExitTime, Equity: equity})
	}

	annotateDrawdown(res.Equity)
	res.Stats = Summarize(capital, res.Trades, res.Equity, res.Skips)
	res.Stats.Days = countDays(r.cfg.StartTS, r.cfg.EndTS)
	return res, nil
}

// resolveTrade 从决策截止时刻向后扫描当日 K 线，取 {止损、止盈、
// 收盘超时} 中最先发生者。扫描只沿模拟时钟推进，天然满足因果性。
// 同一根 K 线内先判止损再判止盈，保守处理无法分辨的路径。
func (r *Runner) resolveTrade(runID, dayKey string, cutoff int64, rec signal.Recommendation, sizing risk.Sizing, dayCandles []market.Candle) Trade {
	exitPrice := 0.0
	exitTime := int64(0)
	reason := ExitReason("")
	long := rec.Direction == signal.DirectionLong

	for _, c := range dayCandles {
		if c.OpenTime < cutoff {
			continue
		}
		if long {
			if priceLTE(c.Low, rec.StopLoss) {
				exitPrice, exitTime, reason = rec.StopLoss, c.CloseTime, ExitStopHit
			} else if priceGTE(c.High, rec.TakeProfit) {
				exitPrice, exitTime, reason = rec.TakeProfit, c.CloseTime, ExitTargetHit
			}
		} else {
			if priceGTE(c.High, rec.StopLoss) {
				exitPrice, exitTime, reason = rec.StopLoss, c.CloseTime, ExitStopHit
			} else if priceLTE(c.Low, rec.TakeProfit) {
				exitPrice, exitTime, reason = rec.TakeProfit, c.CloseTime, ExitTargetHit
			}
		}
		if reason != "" {
			break
		}
	}
	if reason == "" {
		last := dayCandles[len(dayCandles)-1]
		exitPrice, exitTime, reason = last.Close, last.CloseTime, ExitSessionTimeout
	}

	outcome := risk.Evaluate(rec.EntryPrice, exitPrice, sizing.PositionSize, rec.DirectionSign(), sizing.EffectiveRisk, r.cfg.Strategy.Costs)
	return Trade{
		RunID:         runID,
		DayKey:        dayKey,
		EntryTime:     cutoff,
		Side:          strings.ToLower(string(rec.Direction)),
		EntryPrice:    rec.EntryPrice,
		StopLoss:      rec.StopLoss,
		TakeProfit:    rec.TakeProfit,
		ExitTime:      exitTime,
		ExitPrice:     exitPrice,
		ExitReason:    reason,
		PositionSize:  sizing.PositionSize,
		GrossPnL:      outcome.GrossPnL,
		NetPnL:        outcome.NetPnL,
		EffectiveRisk: sizing.EffectiveRisk,
		RMultiple:     outcome.RMultiple,
		UsedFallback:  rec.Source == signal.SourceEMAFallback,
	}
}

func sliceDay(candles []market.Candle, start, end int64) []market.Candle {
	lo := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime >= start })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime >= end })
	return candles[lo:hi]
}

func dayEnd(dayCandles []market.Candle) int64 {
	return dayCandles[len(dayCandles)-1].CloseTime
}

func countDays(start, end int64) int {
	first := market.DayStart(start)
	if end < first {
		return 0
	}
	return int((end-first)/dayMillis) + 1
}
