package backtest

// Summarize 从台账派生汇总指标。只读输入，不修改台账。
func Summarize(initialCapital float64, trades []Trade, equity []EquityPoint, skips []SkipRecord) RunStats {
	stats := RunStats{
		FinalEquity: initialCapital,
		SkippedDays: make(map[SkipReason]int),
	}
	for _, s := range skips {
		stats.SkippedDays[s.Reason]++
	}

	grossProfit := 0.0
	grossLoss := 0.0
	sumR := 0.0
	for _, t := range trades {
		stats.Trades++
		stats.TotalNetPnL += t.NetPnL
		sumR += t.RMultiple
		if t.UsedFallback {
			stats.FallbackTrades++
		}
		switch {
		case t.NetPnL > 0:
			stats.Wins++
			grossProfit += t.NetPnL
		case t.NetPnL < 0:
			stats.Losses++
			grossLoss += -t.NetPnL
		}
	}
	if stats.Trades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
		stats.AvgNetPnL = stats.TotalNetPnL / float64(stats.Trades)
		stats.AvgRMultiple = sumR / float64(stats.Trades)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossProfit / grossLoss
	} else {
		// 没有亏损腿时分母按 1 处理，JSON 表达不了 +Inf。
		stats.ProfitFactor = grossProfit
	}
	stats.FinalEquity = initialCapital + stats.TotalNetPnL
	stats.MaxDrawdownPct = maxDrawdownPct(equity)
	return stats
}

// annotateDrawdown 为资金曲线逐点回填相对历史峰值的回撤比例。
func annotateDrawdown(points []EquityPoint) {
	peak := 0.0
	for i := range points {
		if points[i].Equity > peak {
			peak = points[i].Equity
		}
		if peak > 0 {
			points[i].Drawdown = (peak - points[i].Equity) / peak
		}
	}
}

func maxDrawdownPct(points []EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range points {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}
