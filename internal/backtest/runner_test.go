package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/internal/config"
	"orb/internal/market"
	"orb/internal/risk"
	"orb/internal/signal"
)

// 2024-03-01 00:00:00 UTC
const day0 = int64(1709251200000)

const minMs = int64(60_000)

func testStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		InitialCapital: 1000,
		Leverage:       2,
		RiskPerTrade:   0.01,
		ORB: config.ORBConfig{
			RangeMinutes:       30,
			EntryWindowMinutes: 120,
			TakeProfitR:        2.0,
		},
		EMAFallback: config.EMAConfig{
			EMAPeriod:   15,
			ATRPeriod:   14,
			TrendWindow: 3,
			PullbackATR: 1.0,
			TakeProfitR: 1.5,
		},
		Costs: config.CostsConfig{CommissionRate: 0.0004, SlippageBps: 2},
	}
}

func bc(open int64, o, h, l, c float64) market.Candle {
	return market.Candle{
		OpenTime:  open,
		CloseTime: open + 5*minMs,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    10,
	}
}

// breakoutDay 构造一个向上突破日：开盘区间 [100,105]，
// 决策截止前收盘 106，截止后按 post 给定的路径走。
func breakoutDay(day int64, post ...market.Candle) []market.Candle {
	var out []market.Candle
	rangeBars := [][4]float64{
		{101, 103, 100, 102},
		{102, 104, 101, 103},
		{103, 105, 102, 104},
		{104, 105, 103, 104},
		{104, 104.5, 103, 103.5},
		{103.5, 104, 102.5, 103},
	}
	for i, v := range rangeBars {
		out = append(out, bc(day+int64(i)*5*minMs, v[0], v[1], v[2], v[3]))
	}
	for i := 6; i < 23; i++ {
		out = append(out, bc(day+int64(i)*5*minMs, 103, 104.5, 102.5, 103.5))
	}
	out = append(out, bc(day+23*5*minMs, 104, 106.5, 103.5, 106))
	return append(out, post...)
}

// flatDay 构造无信号日：全天横盘在开盘区间内。
func flatDay(day int64, bars int) []market.Candle {
	out := make([]market.Candle, 0, bars)
	for i := 0; i < bars; i++ {
		out = append(out, bc(day+int64(i)*5*minMs, 103, 103.5, 102.5, 103))
	}
	return out
}

func TestRunnerTargetHitDay(t *testing.T) {
	cutoff := day0 + 120*minMs
	candles := breakoutDay(day0,
		bc(cutoff, 106, 116, 104, 115.5), // 一根拉到止盈之上
		bc(cutoff+5*minMs, 115, 115.5, 112, 113),
	)
	cfg := RunConfig{
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		StartTS:   day0,
		EndTS:     day0 + 23*60*minMs,
		Strategy:  testStrategy(),
	}

	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Empty(t, res.Skips)

	tr := res.Trades[0]
	assert.Equal(t, "2024-03-01", tr.DayKey)
	assert.Equal(t, cutoff, tr.EntryTime)
	assert.Equal(t, "long", tr.Side)
	assert.Equal(t, 105.0, tr.EntryPrice)
	assert.Equal(t, 100.0, tr.StopLoss)
	assert.Equal(t, 115.0, tr.TakeProfit)
	assert.Equal(t, ExitTargetHit, tr.ExitReason)
	assert.Equal(t, 115.0, tr.ExitPrice)
	assert.InDelta(t, 2.0, tr.PositionSize, 1e-9)
	assert.InDelta(t, 10.0, tr.EffectiveRisk, 1e-9)
	assert.InDelta(t, 19.736, tr.NetPnL, 1e-9)
	assert.InDelta(t, 1.9736, tr.RMultiple, 1e-9)
	assert.False(t, tr.UsedFallback)

	assert.Equal(t, 1, res.Stats.Trades)
	assert.Equal(t, 1, res.Stats.Wins)
	assert.InDelta(t, 1019.736, res.Stats.FinalEquity, 1e-9)
	require.Len(t, res.Equity, 1)
	assert.InDelta(t, 1019.736, res.Equity[0].Equity, 1e-9)
}

func TestRunnerStopBeforeTargetSameCandle(t *testing.T) {
	cutoff := day0 + 120*minMs
	r := NewRunner(RunConfig{Symbol: "BTCUSDT", StartTS: day0, EndTS: day0, Strategy: testStrategy()})
	rec := signal.Recommendation{
		Symbol: "BTCUSDT", Direction: signal.DirectionLong,
		EntryPrice: 105, StopLoss: 100, TakeProfit: 115, Source: signal.SourceORB,
	}
	sizing := risk.Sizing{PositionSize: 2, EffectiveRisk: 10, Notional: 210}
	// 同一根 K 线同时扫过止损与止盈：保守按止损处理
	day := breakoutDay(day0, bc(cutoff, 106, 116, 99, 110))

	tr := r.resolveTrade("run-1", "2024-03-01", cutoff, rec, sizing, day)
	assert.Equal(t, ExitStopHit, tr.ExitReason)
	assert.Equal(t, 100.0, tr.ExitPrice)
	assert.Negative(t, tr.NetPnL)
}

func TestRunnerSessionTimeout(t *testing.T) {
	cutoff := day0 + 120*minMs
	candles := breakoutDay(day0,
		bc(cutoff, 106, 107, 104, 106.5),
		bc(cutoff+5*minMs, 106.5, 108, 105, 107),
	)
	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day0 + 23*60*minMs,
		Strategy: testStrategy(),
	}

	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ExitSessionTimeout, tr.ExitReason)
	assert.Equal(t, 107.0, tr.ExitPrice) // 当日最后一根收盘价
	assert.Equal(t, candles[len(candles)-1].CloseTime, tr.ExitTime)
	assert.Positive(t, tr.NetPnL)
}

func TestRunnerShortStopHit(t *testing.T) {
	cutoff := day0 + 120*minMs
	candles := breakoutDay(day0)
	// 改写突破方向为向下
	last := &candles[len(candles)-1]
	last.Open, last.High, last.Low, last.Close = 101, 101.5, 98.5, 99
	candles = append(candles, bc(cutoff, 99, 106, 98.5, 99.5)) // 反弹扫过止损 105 后收回

	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day0 + 23*60*minMs,
		Strategy: testStrategy(),
	}
	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, "short", tr.Side)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, ExitStopHit, tr.ExitReason)
	assert.Equal(t, 105.0, tr.ExitPrice)
	assert.Negative(t, tr.NetPnL)
}

func TestRunnerSkipAccounting(t *testing.T) {
	// 第一天横盘无信号，第二天完全没有数据
	candles := flatDay(day0, 30)
	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day0 + dayMillis,
		Strategy: testStrategy(),
	}

	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Skips, 2)
	assert.Equal(t, SkipNoSignal, res.Skips[0].Reason)
	assert.Equal(t, "2024-03-01", res.Skips[0].DayKey)
	assert.Equal(t, SkipInsufficientData, res.Skips[1].Reason)
	assert.Equal(t, "2024-03-02", res.Skips[1].DayKey)

	assert.Equal(t, 2, res.Stats.Days)
	assert.Equal(t, 1, res.Stats.SkippedDays[SkipNoSignal])
	assert.Equal(t, 1, res.Stats.SkippedDays[SkipInsufficientData])
	assert.InDelta(t, 1000.0, res.Stats.FinalEquity, 1e-9)

	// 跳过日同样落持平采样点
	require.Len(t, res.Equity, 2)
	assert.InDelta(t, 1000.0, res.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 1000.0, res.Equity[1].Equity, 1e-9)
}

func TestRunnerEquityPointEveryDay(t *testing.T) {
	// 第一天数据损坏，第二天没有数据，第三天正常成交：
	// 三天都必须在资金曲线上留下一个采样点。
	day1 := day0 + dayMillis
	day2 := day0 + 2*dayMillis
	bad := flatDay(day0, 20)
	bad[5].High = bad[5].Low - 1
	candles := append(bad, breakoutDay(day2, bc(day2+120*minMs, 106, 116, 104, 115.5))...)

	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day2 + 23*60*minMs,
		Strategy: testStrategy(),
	}
	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)

	require.Len(t, res.Skips, 2)
	assert.Equal(t, SkipDataIntegrity, res.Skips[0].Reason)
	assert.Equal(t, SkipInsufficientData, res.Skips[1].Reason)
	require.Len(t, res.Trades, 1)

	require.Len(t, res.Equity, 3)
	assert.InDelta(t, 1000.0, res.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 1000.0, res.Equity[1].Equity, 1e-9)
	assert.InDelta(t, 1019.736, res.Equity[2].Equity, 1e-9)
	// 无数据日的采样时间戳落在当日范围内
	assert.GreaterOrEqual(t, res.Equity[1].TS, day1)
	assert.Less(t, res.Equity[1].TS, day2)
}

func TestRunnerCapitalInfeasibleSkip(t *testing.T) {
	cutoff := day0 + 120*minMs
	candles := breakoutDay(day0, bc(cutoff, 106, 116, 104, 115.5))

	strategy := testStrategy()
	strategy.InitialCapital = 0.1 // 买不起最小步进
	strategy.Leverage = 1
	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day0 + 23*60*minMs,
		Strategy: strategy,
	}

	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, SkipCapitalInfeasible, res.Skips[0].Reason)
}

func TestRunnerCorruptDayIsIsolated(t *testing.T) {
	day1 := day0 + dayMillis
	bad := flatDay(day0, 20)
	bad[5].High = bad[5].Low - 1 // 当天数据损坏
	good := breakoutDay(day1, bc(day1+120*minMs, 106, 116, 104, 115.5))
	candles := append(bad, good...)

	cfg := RunConfig{
		Symbol: "BTCUSDT", Timeframe: "5m",
		StartTS: day0, EndTS: day1 + 23*60*minMs,
		Strategy: testStrategy(),
	}
	res, err := NewRunner(cfg).Run(context.Background(), "run-1", candles)
	require.NoError(t, err)

	// 坏数据只废第一天，第二天正常成交
	require.Len(t, res.Skips, 1)
	assert.Equal(t, SkipDataIntegrity, res.Skips[0].Reason)
	assert.Equal(t, "2024-03-01", res.Skips[0].DayKey)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "2024-03-02", res.Trades[0].DayKey)
}
