package config

import "strings"

// Config 是引擎的主配置载体。加载完成后在一次回测内不可变。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Strategy StrategyConfig `toml:"strategy"`
	Backtest BacktestConfig `toml:"backtest"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 描述 K 线数据的来源与落盘位置。
type DataConfig struct {
	Root         string `toml:"root"`          // K 线 SQLite 目录
	Source       string `toml:"source"`        // 目前仅 binance
	RESTBaseURL  string `toml:"rest_base_url"` // 空则用数据源默认
	Timeframe    string `toml:"timeframe"`     // 执行周期
	ProfilesPath string `toml:"profiles_path"` // 策略参数 profile 文件
}

// StrategyConfig 汇总一次回测/实时推荐所需的全部策略参数。
// 值语义传入纯函数，不存在跨层共享的可变状态。
type StrategyConfig struct {
	InitialCapital float64     `toml:"initial_capital"` // USDT
	Leverage       float64     `toml:"leverage"`        // >= 1
	RiskPerTrade   float64     `toml:"risk_per_trade"`  // (0,1]
	ORB            ORBConfig   `toml:"orb"`
	EMAFallback    EMAConfig   `toml:"ema_fallback"`
	Costs          CostsConfig `toml:"costs"`
}

// ORBConfig 控制开盘区间突破策略。
type ORBConfig struct {
	RangeMinutes       int     `toml:"range_minutes"`        // 开盘区间长度
	EntryWindowMinutes int     `toml:"entry_window_minutes"` // 每日决策截止 = 开盘 + 该窗口
	TakeProfitR        float64 `toml:"take_profit_r"`        // 止盈 = 入场 ± R 倍区间风险
}

// EMAConfig 控制 EMA 回踩兜底策略。
type EMAConfig struct {
	EMAPeriod   int     `toml:"ema_period"`
	ATRPeriod   int     `toml:"atr_period"`
	TrendWindow int     `toml:"trend_window"` // 判定趋势成立所需的连续 K 线数
	PullbackATR float64 `toml:"pullback_atr"` // 收盘价距 EMA 的最大 ATR 倍数
	TakeProfitR float64 `toml:"take_profit_r"`
}

// CostsConfig 描述手续费与滑点模型（进出两腿均计费）。
type CostsConfig struct {
	CommissionRate float64 `toml:"commission_rate"` // 单腿费率
	SlippageBps    float64 `toml:"slippage_bps"`    // 单腿滑点（基点）
}

type BacktestConfig struct {
	ResultsPath   string `toml:"results_path"`   // 运行/成交台账 SQLite
	ReportDir     string `toml:"report_dir"`     // 资金曲线 HTML 输出目录
	MaxConcurrent int    `toml:"max_concurrent"` // 并行回测上限
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
