package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9980"
	defaultDataRoot     = "data/candles"
	defaultDataSource   = "binance"
	defaultTimeframe    = "5m"
	defaultProfilesPath = "configs/profiles.yaml"

	defaultInitialCapital = 1000.0
	defaultLeverage       = 1.0
	defaultRiskPerTrade   = 0.01

	defaultORBRangeMinutes = 30
	defaultORBEntryWindow  = 120
	defaultORBTakeProfitR  = 2.0

	defaultEMAPeriod   = 15
	defaultATRPeriod   = 14
	defaultTrendWindow = 3
	defaultPullbackATR = 1.0
	defaultEMATPR      = 1.5

	defaultCommissionRate = 0.0004 // 4bps 单腿
	defaultSlippageBps    = 2.0

	defaultResultsPath   = "data/results/runs.db"
	defaultReportDir     = "data/reports"
	defaultMaxConcurrent = 2
)

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

// applyDefaults 只为未出现在配置文件中的 key 补默认值，
// 显式写 0 的字段（例如零手续费）不会被覆盖。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("data.root", &d.Root, defaultDataRoot),
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.timeframe", &d.Timeframe, defaultTimeframe),
		stringFieldDefault("data.profiles_path", &d.ProfilesPath, defaultProfilesPath),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("strategy.initial_capital", &s.InitialCapital, defaultInitialCapital),
		floatFieldDefault("strategy.leverage", &s.Leverage, defaultLeverage),
		floatFieldDefault("strategy.risk_per_trade", &s.RiskPerTrade, defaultRiskPerTrade),
		intFieldDefault("strategy.orb.range_minutes", &s.ORB.RangeMinutes, defaultORBRangeMinutes),
		intFieldDefault("strategy.orb.entry_window_minutes", &s.ORB.EntryWindowMinutes, defaultORBEntryWindow),
		floatFieldDefault("strategy.orb.take_profit_r", &s.ORB.TakeProfitR, defaultORBTakeProfitR),
		intFieldDefault("strategy.ema_fallback.ema_period", &s.EMAFallback.EMAPeriod, defaultEMAPeriod),
		intFieldDefault("strategy.ema_fallback.atr_period", &s.EMAFallback.ATRPeriod, defaultATRPeriod),
		intFieldDefault("strategy.ema_fallback.trend_window", &s.EMAFallback.TrendWindow, defaultTrendWindow),
		floatFieldDefault("strategy.ema_fallback.pullback_atr", &s.EMAFallback.PullbackATR, defaultPullbackATR),
		floatFieldDefault("strategy.ema_fallback.take_profit_r", &s.EMAFallback.TakeProfitR, defaultEMATPR),
		floatFieldDefault("strategy.costs.commission_rate", &s.Costs.CommissionRate, defaultCommissionRate),
		floatFieldDefault("strategy.costs.slippage_bps", &s.Costs.SlippageBps, defaultSlippageBps),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.results_path", &b.ResultsPath, defaultResultsPath),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultReportDir),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
