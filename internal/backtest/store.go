package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ResultStore 用 Gorm + SQLite 保存回测 run、台账、资金曲线与跳过记录。
// 台账 append-only：落账后的 Trade 行不再更新。
type ResultStore struct {
	db *gorm.DB
}

// NewResultStore 打开（或创建）结果库并完成迁移。
func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("result store: 结果库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}, &skipModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- Run lifecycle -------------------------

func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("result store 未初始化")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id 必填")
	}
	model, err := newRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *ResultStore) UpdateRunStatus(ctx context.Context, runID, status, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("result store 未初始化")
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).
		Where("run_uuid = ?", runID).
		Updates(map[string]interface{}{
			"status":     status,
			"message":    strings.TrimSpace(message),
			"updated_at": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FinishRun 将 run 标记为 done 并落最终汇总。
func (s *ResultStore) FinishRun(ctx context.Context, runID string, stats RunStats) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("result store 未初始化")
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	res := s.db.WithContext(ctx).Model(&runModel{}).
		Where("run_uuid = ?", runID).
		Updates(map[string]interface{}{
			"status":       RunStatusDone,
			"stats_json":   datatypes.JSON(statsJSON),
			"updated_at":   now,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *ResultStore) GetRun(ctx context.Context, runID string) (Run, bool, error) {
	if s == nil || s.db == nil {
		return Run{}, false, fmt.Errorf("result store 未初始化")
	}
	var model runModel
	if err := s.db.WithContext(ctx).Where("run_uuid = ?", runID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	run, err := runModelToRecord(model)
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("result store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := runModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// --------------------- Result payload -------------------------

// SaveResult 在单个事务里落一次回测的全部产物。
func (s *ResultStore) SaveResult(ctx context.Context, runID string, res Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("result store 未初始化")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(res.Trades) > 0 {
			models := make([]tradeModel, 0, len(res.Trades))
			for _, t := range res.Trades {
				models = append(models, newTradeModel(t))
			}
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		if len(res.Equity) > 0 {
			models := make([]equityModel, 0, len(res.Equity))
			for _, p := range res.Equity {
				models = append(models, equityModel{
					RunID:    p.RunID,
					TS:       p.TS,
					Equity:   p.Equity,
					Drawdown: p.Drawdown,
				})
			}
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		if len(res.Skips) > 0 {
			models := make([]skipModel, 0, len(res.Skips))
			for _, sk := range res.Skips {
				models = append(models, skipModel{
					RunID:  sk.RunID,
					DayKey: sk.DayKey,
					Reason: string(sk.Reason),
					Detail: sk.Detail,
				})
			}
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string) ([]Trade, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("result store 未初始化")
	}
	var models []tradeModel
	if err := s.db.WithContext(ctx).
		Where("run_uuid = ?", runID).
		Order("entry_time ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToRecord(m))
	}
	return out, nil
}

func (s *ResultStore) ListEquity(ctx context.Context, runID string) ([]EquityPoint, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("result store 未初始化")
	}
	var models []equityModel
	if err := s.db.WithContext(ctx).
		Where("run_uuid = ?", runID).
		Order("ts ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EquityPoint, 0, len(models))
	for _, m := range models {
		out = append(out, EquityPoint{RunID: m.RunID, TS: m.TS, Equity: m.Equity, Drawdown: m.Drawdown})
	}
	return out, nil
}

func (s *ResultStore) ListSkips(ctx context.Context, runID string) ([]SkipRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("result store 未初始化")
	}
	var models []skipModel
	if err := s.db.WithContext(ctx).
		Where("run_uuid = ?", runID).
		Order("day_key ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]SkipRecord, 0, len(models))
	for _, m := range models {
		out = append(out, SkipRecord{RunID: m.RunID, DayKey: m.DayKey, Reason: SkipReason(m.Reason), Detail: m.Detail})
	}
	return out, nil
}

// --------------------------- Models ------------------------------

type runModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_uuid;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Profile       string         `gorm:"column:profile"`
	Status        string         `gorm:"column:status;index"`
	StartTS       int64          `gorm:"column:start_ts"`
	EndTS         int64          `gorm:"column:end_ts"`
	Timeframe     string         `gorm:"column:timeframe"`
	Message       string         `gorm:"column:message"`
	ConfigJSON    datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	StatsJSON     datatypes.JSON `gorm:"column:stats_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
	CompletedAt   int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	RunID         string  `gorm:"column:run_uuid;index"`
	DayKey        string  `gorm:"column:day_key"`
	EntryTime     int64   `gorm:"column:entry_time"`
	Side          string  `gorm:"column:side"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	TakeProfit    float64 `gorm:"column:take_profit"`
	ExitTime      int64   `gorm:"column:exit_time"`
	ExitPrice     float64 `gorm:"column:exit_price"`
	ExitReason    string  `gorm:"column:exit_reason"`
	PositionSize  float64 `gorm:"column:position_size"`
	GrossPnL      float64 `gorm:"column:gross_pnl_usdt"`
	NetPnL        float64 `gorm:"column:net_pnl_usdt"`
	EffectiveRisk float64 `gorm:"column:effective_risk_usdt"`
	RMultiple     float64 `gorm:"column:r_multiple"`
	UsedFallback  int     `gorm:"column:used_fallback"`
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	RunID    string  `gorm:"column:run_uuid;index"`
	TS       int64   `gorm:"column:ts"`
	Equity   float64 `gorm:"column:equity"`
	Drawdown float64 `gorm:"column:drawdown"`
}

func (equityModel) TableName() string { return "backtest_equity" }

type skipModel struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	RunID  string `gorm:"column:run_uuid;index"`
	DayKey string `gorm:"column:day_key"`
	Reason string `gorm:"column:reason"`
	Detail string `gorm:"column:detail"`
}

func (skipModel) TableName() string { return "backtest_skips" }

// --- Model conversion helpers ---

func newRunModel(run Run) (runModel, error) {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runModel{}, err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return runModel{}, err
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	return runModel{
		RunID:         run.ID,
		Symbol:        strings.ToUpper(strings.TrimSpace(run.Symbol)),
		Profile:       strings.TrimSpace(run.Profile),
		Status:        run.Status,
		StartTS:       run.StartTS,
		EndTS:         run.EndTS,
		Timeframe:     run.Timeframe,
		Message:       run.Message,
		ConfigJSON:    datatypes.JSON(cfgJSON),
		StatsJSON:     datatypes.JSON(statsJSON),
		CreatedAtUnix: run.CreatedAt.UnixMilli(),
		UpdatedAtUnix: run.UpdatedAt.UnixMilli(),
		CompletedAt:   timeToMillis(run.CompletedAt),
	}, nil
}

func runModelToRecord(m runModel) (Run, error) {
	run := Run{
		ID:        m.RunID,
		Symbol:    m.Symbol,
		Profile:   m.Profile,
		Status:    m.Status,
		StartTS:   m.StartTS,
		EndTS:     m.EndTS,
		Timeframe: m.Timeframe,
		Message:   m.Message,
		CreatedAt: millisToTime(m.CreatedAtUnix),
		UpdatedAt: millisToTime(m.UpdatedAtUnix),
	}
	if m.CompletedAt > 0 {
		run.CompletedAt = millisToTime(m.CompletedAt)
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return Run{}, fmt.Errorf("run %s config payload corrupt: %w", m.RunID, err)
		}
	}
	if len(m.StatsJSON) > 0 {
		if err := json.Unmarshal(m.StatsJSON, &run.Stats); err != nil {
			return Run{}, fmt.Errorf("run %s stats payload corrupt: %w", m.RunID, err)
		}
	}
	return run, nil
}

func newTradeModel(t Trade) tradeModel {
	fallback := 0
	if t.UsedFallback {
		fallback = 1
	}
	return tradeModel{
		RunID:         t.RunID,
		DayKey:        t.DayKey,
		EntryTime:     t.EntryTime,
		Side:          t.Side,
		EntryPrice:    t.EntryPrice,
		StopLoss:      t.StopLoss,
		TakeProfit:    t.TakeProfit,
		ExitTime:      t.ExitTime,
		ExitPrice:     t.ExitPrice,
		ExitReason:    string(t.ExitReason),
		PositionSize:  t.PositionSize,
		GrossPnL:      t.GrossPnL,
		NetPnL:        t.NetPnL,
		EffectiveRisk: t.EffectiveRisk,
		RMultiple:     t.RMultiple,
		UsedFallback:  fallback,
	}
}

func tradeModelToRecord(m tradeModel) Trade {
	return Trade{
		ID:            m.ID,
		RunID:         m.RunID,
		DayKey:        m.DayKey,
		EntryTime:     m.EntryTime,
		Side:          m.Side,
		EntryPrice:    m.EntryPrice,
		StopLoss:      m.StopLoss,
		TakeProfit:    m.TakeProfit,
		ExitTime:      m.ExitTime,
		ExitPrice:     m.ExitPrice,
		ExitReason:    ExitReason(m.ExitReason),
		PositionSize:  m.PositionSize,
		GrossPnL:      m.GrossPnL,
		NetPnL:        m.NetPnL,
		EffectiveRisk: m.EffectiveRisk,
		RMultiple:     m.RMultiple,
		UsedFallback:  m.UsedFallback != 0,
	}
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
