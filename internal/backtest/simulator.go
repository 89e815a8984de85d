package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"orb/internal/logger"
	"orb/internal/market"
)

// 指标 warmup：决策前额外向历史回看两天，保证 EMA/ATR 有足够样本。
const warmupMillis = 2 * dayMillis

// SimulatorConfig 配置 Simulator。
type SimulatorConfig struct {
	Results          *ResultStore
	Feed             *market.Feed
	DefaultTimeframe string
	MaxConcurrent    int
}

// Simulator 负责回测任务的生命周期：提交、并发调度、落库。
// 单个 run 在后台 goroutine 中执行，信号量限制并发。
type Simulator struct {
	results   *ResultStore
	feed      *market.Feed
	defaultTF string
	sem       chan struct{}

	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("candle feed 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	defaultTF := strings.TrimSpace(cfg.DefaultTimeframe)
	if defaultTF == "" {
		defaultTF = "5m"
	}
	return &Simulator{
		results:   cfg.Results,
		feed:      cfg.Feed,
		defaultTF: defaultTF,
		sem:       make(chan struct{}, maxConcurrent),
		baseCtx:   context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Submit 校验参数、登记 run 并在后台启动回测，立即返回 pending 状态。
func (s *Simulator) Submit(cfg RunConfig) (Run, error) {
	run, tf, err := s.register(cfg)
	if err != nil {
		return Run{}, err
	}
	go s.runOne(run.ID, run.Config, tf)
	return run, nil
}

// RunBatch 同步并发执行一组回测，全部完成后返回。
// 并发度仍由信号量约束，任何一个 run 失败不会中断其它 run。
func (s *Simulator) RunBatch(ctx context.Context, cfgs []RunConfig) ([]Run, error) {
	runs := make([]Run, 0, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		run, tf, err := s.register(cfg)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
		runID, runCfg := run.ID, run.Config
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			s.runOne(runID, runCfg, tf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}
	return runs, nil
}

func (s *Simulator) register(cfg RunConfig) (Run, market.Timeframe, error) {
	if strings.TrimSpace(cfg.Symbol) == "" {
		return Run{}, market.Timeframe{}, fmt.Errorf("symbol 不能为空")
	}
	if cfg.StartTS <= 0 || cfg.EndTS <= 0 || cfg.EndTS < cfg.StartTS {
		return Run{}, market.Timeframe{}, fmt.Errorf("start_ts/end_ts 需要构成区间")
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = s.defaultTF
	}
	tf, err := market.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return Run{}, market.Timeframe{}, err
	}
	cfg.Timeframe = tf.Key
	if err := cfg.Strategy.Validate(); err != nil {
		return Run{}, market.Timeframe{}, err
	}
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))

	now := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Symbol:    cfg.Symbol,
		Profile:   cfg.Profile,
		Status:    RunStatusPending,
		StartTS:   cfg.StartTS,
		EndTS:     cfg.EndTS,
		Timeframe: cfg.Timeframe,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, market.Timeframe{}, err
	}
	logger.Infof("[backtest] run %s 提交：%s %s [%d,%d]", run.ID, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS)
	return run, tf, nil
}

func (s *Simulator) runOne(runID string, cfg RunConfig, tf market.Timeframe) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.fail(runID, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if err := s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, ""); err != nil {
		logger.Errorf("[backtest] run %s 状态更新失败: %v", runID, err)
		return
	}

	loadStart := cfg.StartTS - warmupMillis
	report, err := s.feed.Ensure(ctx, cfg.Symbol, tf, loadStart, cfg.EndTS)
	if err != nil {
		s.fail(runID, fmt.Sprintf("数据准备失败: %v", err))
		return
	}
	if !report.Complete() {
		// 剩余缺口交给 Runner 按天跳过，不在这里终止整个 run。
		logger.Warnf("[backtest] run %s 数据仍有缺口=%d，逐日处理", runID, len(report.Gaps))
	}
	candles, err := s.feed.Load(ctx, cfg.Symbol, tf, loadStart, cfg.EndTS)
	if err != nil {
		s.fail(runID, fmt.Sprintf("数据加载失败: %v", err))
		return
	}

	result, err := NewRunner(cfg).Run(ctx, runID, candles)
	if err != nil {
		s.fail(runID, err.Error())
		return
	}
	if err := s.results.SaveResult(ctx, runID, result); err != nil {
		s.fail(runID, fmt.Sprintf("结果落库失败: %v", err))
		return
	}
	if err := s.results.FinishRun(ctx, runID, result.Stats); err != nil {
		logger.Errorf("[backtest] run %s 收尾失败: %v", runID, err)
		return
	}
	logger.Infof("[backtest] run %s 完成：trades=%d net=%.2f 跳过=%d",
		runID, result.Stats.Trades, result.Stats.TotalNetPnL, len(result.Skips))
}

func (s *Simulator) fail(runID, message string) {
	logger.Errorf("[backtest] run %s 失败: %s", runID, message)
	if err := s.results.UpdateRunStatus(s.ctx(), runID, RunStatusFailed, message); err != nil {
		logger.Errorf("[backtest] run %s 失败状态落库失败: %v", runID, err)
	}
}
