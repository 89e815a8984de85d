// Package app 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"orb/internal/backtest"
	"orb/internal/config"
	"orb/internal/config/loader"
	"orb/internal/logger"
	"orb/internal/market"
	"orb/internal/report"
)

// App 持有全部长生命周期组件。
type App struct {
	cfg *config.Config

	candles  *market.Store
	results  *backtest.ResultStore
	profiles *loader.ProfileLoader
	sim      *backtest.Simulator
	http     *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	candles, err := market.NewStore(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("candle store: %w", err)
	}
	source, err := buildSource(cfg.Data)
	if err != nil {
		return nil, err
	}
	feed, err := market.NewFeed(market.FeedConfig{Store: candles, Source: source})
	if err != nil {
		return nil, err
	}

	results, err := backtest.NewResultStore(cfg.Backtest.ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("result store: %w", err)
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Results:          results,
		Feed:             feed,
		DefaultTimeframe: cfg.Data.Timeframe,
		MaxConcurrent:    cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}
	advisor, err := backtest.NewAdvisor(feed)
	if err != nil {
		return nil, err
	}

	var profiles *loader.ProfileLoader
	if path := strings.TrimSpace(cfg.Data.ProfilesPath); path != "" {
		profiles, err = loader.NewProfileLoader(path)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		if err := profiles.Watch(); err != nil {
			return nil, fmt.Errorf("profiles watch: %w", err)
		}
	}

	reportDir := cfg.Backtest.ReportDir
	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:             cfg.App.HTTPAddr,
		Simulator:        sim,
		Results:          results,
		Store:            candles,
		Advisor:          advisor,
		Profiles:         profiles,
		BaseStrategy:     cfg.Strategy,
		DefaultTimeframe: cfg.Data.Timeframe,
		Chart: func(run backtest.Run, equity []backtest.EquityPoint) (string, error) {
			return report.WriteEquityHTML(reportDir, run, equity)
		},
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		candles:  candles,
		results:  results,
		profiles: profiles,
		sim:      sim,
		http:     httpSrv,
	}, nil
}

// Run 启动 HTTP 服务，阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.sim.SetContext(ctx)
	logger.Infof("✓ 引擎启动（环境=%s，监听=%s，周期=%s）", a.cfg.App.Env, a.cfg.App.HTTPAddr, a.cfg.Data.Timeframe)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.close()
	return err
}

// Simulator 暴露底层模拟器（供测试与批处理入口使用）。
func (a *App) Simulator() *backtest.Simulator {
	if a == nil {
		return nil
	}
	return a.sim
}

func (a *App) close() {
	if a.profiles != nil {
		_ = a.profiles.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.candles != nil {
		_ = a.candles.Close()
	}
}

func buildSource(cfg config.DataConfig) (market.CandleSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "binance":
		return market.NewBinanceSource(cfg.RESTBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown candle source: %s", cfg.Source)
	}
}
