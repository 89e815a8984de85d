package market

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"orb/internal/logger"
)

// FeedConfig 配置 Feed。
type FeedConfig struct {
	Store           *Store
	Source          CandleSource
	RateLimitPerMin int
	MaxBatch        int
}

// Feed 负责把本地 K 线库补齐到指定区间：按缺口增量拉取，
// 限速保护远端配额。回测开始前调用一次，模拟过程中不再触网。
type Feed struct {
	store    *Store
	source   CandleSource
	limiter  *rate.Limiter
	maxBatch int
}

func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("feed: store cannot be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("feed: source cannot be nil")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 8
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Feed{
		store:    cfg.Store,
		source:   cfg.Source,
		limiter:  rate.NewLimiter(ratePerSec, maxBatch),
		maxBatch: maxBatch,
	}, nil
}

// Ensure 保证 [start,end]（对齐后）的本地数据完整，返回最终完整性报告。
// 拉取为空或不再推进时提前放弃该缺口，剩余缺口留在报告里由调用方决定。
func (f *Feed) Ensure(ctx context.Context, symbol string, tf Timeframe, start, end int64) (IntegrityReport, error) {
	start, end = tf.AlignRange(start, end)
	report, err := f.store.CheckIntegrity(ctx, symbol, tf.Key, tf, start, end)
	if err != nil {
		return IntegrityReport{}, err
	}
	if report.Complete() {
		return report, nil
	}
	logger.Infof("[market] %s %s [%d,%d] 缺口=%d，开始补齐", symbol, tf.Key, start, end, len(report.Gaps))

	step := tf.DurationMillis()
	for _, gap := range report.Gaps {
		cursor := gap.Start
		for cursor <= gap.End {
			if err := ctx.Err(); err != nil {
				return IntegrityReport{}, err
			}
			if err := f.limiter.Wait(ctx); err != nil {
				return IntegrityReport{}, err
			}
			remaining := int((gap.End-cursor)/step) + 1
			if remaining > f.maxBatch {
				remaining = f.maxBatch
			}
			data, err := f.source.Fetch(ctx, FetchRequest{
				Symbol:   symbol,
				Interval: tf.SourceInterval,
				Start:    cursor,
				End:      gap.End,
				Limit:    remaining,
			})
			if err != nil {
				return IntegrityReport{}, fmt.Errorf("%s fetch failed: %w", f.source.Name(), err)
			}
			if len(data) == 0 {
				logger.Warnf("[market] %s %s 区间 [%d,%d] 拉取为空，放弃该缺口", symbol, tf.Key, cursor, gap.End)
				break
			}
			inserted, err := f.store.InsertCandles(ctx, symbol, tf.Key, data)
			if err != nil {
				return IntegrityReport{}, err
			}
			cursor = data[len(data)-1].OpenTime + step
			if inserted == 0 {
				break
			}
		}
	}

	final, err := f.store.CheckIntegrity(ctx, symbol, tf.Key, tf, start, end)
	if err != nil {
		return IntegrityReport{}, err
	}
	if !final.Complete() {
		logger.Warnf("[market] %s %s 补齐后仍有缺口=%d", symbol, tf.Key, len(final.Gaps))
	}
	return final, nil
}

// Load 返回区间内的本地 K 线（升序）。
func (f *Feed) Load(ctx context.Context, symbol string, tf Timeframe, start, end int64) ([]Candle, error) {
	start, end = tf.AlignRange(start, end)
	return f.store.RangeCandles(ctx, symbol, tf.Key, start, end)
}
