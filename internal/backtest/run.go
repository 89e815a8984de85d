package backtest

import (
	"time"

	"orb/internal/config"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// ExitReason 标记持仓如何了结。
type ExitReason string

const (
	ExitStopHit        ExitReason = "stop_hit"
	ExitTargetHit      ExitReason = "target_hit"
	ExitSessionTimeout ExitReason = "session_timeout"
)

// SkipReason 标记某个交易日为何没有产生交易。
// 按原因计数进汇总，避免静默丢日。
type SkipReason string

const (
	SkipNoSignal              SkipReason = "no_signal"
	SkipCapitalInfeasible     SkipReason = "capital_infeasible"
	SkipInsufficientData      SkipReason = "insufficient_data"
	SkipDataIntegrity         SkipReason = "data_integrity"
	SkipInvalidRecommendation SkipReason = "invalid_recommendation"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Symbol    string                `json:"symbol"`
	Timeframe string                `json:"timeframe"`
	Profile   string                `json:"profile,omitempty"`
	StartTS   int64                 `json:"start_ts"`
	EndTS     int64                 `json:"end_ts"`
	Strategy  config.StrategyConfig `json:"strategy"`
}

// Trade 是台账中的一行：开仓到了结的完整记录，落账后不再更新。
type Trade struct {
	ID            int64      `json:"id"`
	RunID         string     `json:"run_id"`
	DayKey        string     `json:"day_key"`
	EntryTime     int64      `json:"entry_time"`
	Side          string     `json:"side"` // long/short
	EntryPrice    float64    `json:"entry_price"`
	StopLoss      float64    `json:"stop_loss"`
	TakeProfit    float64    `json:"take_profit"`
	ExitTime      int64      `json:"exit_time"`
	ExitPrice     float64    `json:"exit_price"`
	ExitReason    ExitReason `json:"exit_reason"`
	PositionSize  float64    `json:"position_size"`
	GrossPnL      float64    `json:"gross_pnl_usdt"`
	NetPnL        float64    `json:"net_pnl_usdt"`
	EffectiveRisk float64    `json:"effective_risk_usdt"`
	RMultiple     float64    `json:"r_multiple"`
	UsedFallback  bool       `json:"used_fallback"`
}

// EquityPoint 保存资金曲线上的一个采样（每个交易日一点）。
type EquityPoint struct {
	RunID    string  `json:"run_id"`
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Drawdown float64 `json:"drawdown"`
}

// SkipRecord 记录被跳过的交易日。
type SkipRecord struct {
	RunID  string     `json:"run_id"`
	DayKey string     `json:"day_key"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// RunStats 是对台账的只读汇总视图，不重复存储任何逐笔数据。
type RunStats struct {
	Days           int                `json:"days"`
	Trades         int                `json:"trades"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	WinRate        float64            `json:"win_rate"`
	TotalNetPnL    float64            `json:"total_net_pnl_usdt"`
	AvgNetPnL      float64            `json:"avg_net_pnl_usdt"`
	AvgRMultiple   float64            `json:"avg_r_multiple"`
	ProfitFactor   float64            `json:"profit_factor"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	FinalEquity    float64            `json:"final_equity"`
	FallbackTrades int                `json:"fallback_trades"`
	SkippedDays    map[SkipReason]int `json:"skipped_days"`
}

// Result 是一次回测的完整产物。
type Result struct {
	Trades []Trade       `json:"trades"`
	Equity []EquityPoint `json:"equity_curve"`
	Skips  []SkipRecord  `json:"skips"`
	Stats  RunStats      `json:"summary_stats"`
}

// Run 表示一次回测任务的生命周期。
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Profile     string    `json:"profile,omitempty"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	Timeframe   string    `json:"timeframe"`
	Message     string    `json:"message,omitempty"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Profile        string  `json:"profile"`
	StartTS        int64   `json:"start_ts" binding:"required"`
	EndTS          int64   `json:"end_ts" binding:"required"`
	Timeframe      string  `json:"timeframe"`
	InitialCapital float64 `json:"initial_capital"`
	Leverage       float64 `json:"leverage"`
	RiskPerTrade   float64 `json:"risk_per_trade"`
}
