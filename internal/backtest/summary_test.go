package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeLedger(t *testing.T) {
	trades := []Trade{
		{NetPnL: 10, RMultiple: 1.0},
		{NetPnL: 20, RMultiple: 2.0, UsedFallback: true},
		{NetPnL: -15, RMultiple: -1.5},
	}
	equity := []EquityPoint{
		{TS: 1, Equity: 1010},
		{TS: 2, Equity: 1030},
		{TS: 3, Equity: 1015},
	}
	skips := []SkipRecord{
		{Reason: SkipNoSignal},
		{Reason: SkipNoSignal},
		{Reason: SkipInsufficientData},
	}

	stats := Summarize(1000, trades, equity, skips)

	assert.Equal(t, 3, stats.Trades)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 2.0/3.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 15.0, stats.TotalNetPnL, 1e-9)
	assert.InDelta(t, 5.0, stats.AvgNetPnL, 1e-9)
	assert.InDelta(t, 0.5, stats.AvgRMultiple, 1e-9)
	assert.InDelta(t, 2.0, stats.ProfitFactor, 1e-9) // 30 / 15
	assert.InDelta(t, 1015.0, stats.FinalEquity, 1e-9)
	assert.Equal(t, 1, stats.FallbackTrades)
	assert.Equal(t, 2, stats.SkippedDays[SkipNoSignal])
	assert.Equal(t, 1, stats.SkippedDays[SkipInsufficientData])
}

func TestSummarizeEmptyLedger(t *testing.T) {
	stats := Summarize(1000, nil, nil, nil)
	assert.Zero(t, stats.Trades)
	assert.Zero(t, stats.WinRate)
	assert.Zero(t, stats.ProfitFactor)
	assert.InDelta(t, 1000.0, stats.FinalEquity, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	points := []EquityPoint{
		{Equity: 1000},
		{Equity: 1100},
		{Equity: 990}, // 峰值 1100 回撤 10%
		{Equity: 1200},
		{Equity: 1140},
	}
	annotateDrawdown(points)

	assert.Zero(t, points[0].Drawdown)
	assert.InDelta(t, 0.1, points[2].Drawdown, 1e-9)
	assert.InDelta(t, 0.05, points[4].Drawdown, 1e-9)
	assert.InDelta(t, 10.0, maxDrawdownPct(points), 1e-9)
}

func TestProfitFactorNoLosses(t *testing.T) {
	stats := Summarize(1000, []Trade{{NetPnL: 10, RMultiple: 1}}, nil, nil)
	// 无亏损腿时分母按 1 处理
	assert.InDelta(t, 10.0, stats.ProfitFactor, 1e-9)
}
