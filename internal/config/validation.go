package config

import (
	"fmt"
	"strings"
)

// validate 对配置做基础校验，任何违例都视为致命错误。
func validate(c *Config) error {
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.Root) == "" {
		return fmt.Errorf("data.root cannot be empty")
	}
	if strings.ToLower(strings.TrimSpace(d.Source)) != "binance" {
		return fmt.Errorf("data.source only supports binance, got %q", d.Source)
	}
	if strings.TrimSpace(d.Timeframe) == "" {
		return fmt.Errorf("data.timeframe cannot be empty")
	}
	return nil
}

// Validate 导出给运行时调用：profile 覆盖参数后需要重新校验。
func (s *StrategyConfig) Validate() error {
	if s.InitialCapital <= 0 {
		return fmt.Errorf("strategy.initial_capital must be > 0")
	}
	if s.Leverage < 1 {
		return fmt.Errorf("strategy.leverage must be >= 1")
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 1 {
		return fmt.Errorf("strategy.risk_per_trade must be in (0,1]")
	}
	if s.ORB.RangeMinutes <= 0 {
		return fmt.Errorf("strategy.orb.range_minutes must be > 0")
	}
	if s.ORB.EntryWindowMinutes < s.ORB.RangeMinutes {
		return fmt.Errorf("strategy.orb.entry_window_minutes must be >= range_minutes")
	}
	if s.ORB.TakeProfitR <= 0 {
		return fmt.Errorf("strategy.orb.take_profit_r must be > 0")
	}
	if s.EMAFallback.EMAPeriod < 2 {
		return fmt.Errorf("strategy.ema_fallback.ema_period must be >= 2")
	}
	if s.EMAFallback.ATRPeriod < 1 {
		return fmt.Errorf("strategy.ema_fallback.atr_period must be >= 1")
	}
	if s.EMAFallback.TrendWindow < 1 {
		return fmt.Errorf("strategy.ema_fallback.trend_window must be >= 1")
	}
	if s.EMAFallback.PullbackATR <= 0 {
		return fmt.Errorf("strategy.ema_fallback.pullback_atr must be > 0")
	}
	if s.Costs.CommissionRate < 0 {
		return fmt.Errorf("strategy.costs.commission_rate must be >= 0")
	}
	if s.Costs.SlippageBps < 0 {
		return fmt.Errorf("strategy.costs.slippage_bps must be >= 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if strings.TrimSpace(b.ResultsPath) == "" {
		return fmt.Errorf("backtest.results_path cannot be empty")
	}
	if b.MaxConcurrent <= 0 {
		return fmt.Errorf("backtest.max_concurrent must be > 0")
	}
	return nil
}
