package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// WriteTradesCSV 导出台账，列顺序固定以便下游脚本消费。
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	header := []string{
		"day_key", "entry_time", "side", "entry_price", "stop_loss", "take_profit",
		"exit_time", "exit_price", "exit_reason", "position_size",
		"gross_pnl_usdt", "net_pnl_usdt", "effective_risk_usdt", "r_multiple", "used_fallback",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.DayKey,
			strconv.FormatInt(t.EntryTime, 10),
			t.Side,
			formatPrice(t.EntryPrice),
			formatPrice(t.StopLoss),
			formatPrice(t.TakeProfit),
			strconv.FormatInt(t.ExitTime, 10),
			formatPrice(t.ExitPrice),
			string(t.ExitReason),
			strconv.FormatFloat(t.PositionSize, 'f', -1, 64),
			formatPnL(t.GrossPnL),
			formatPnL(t.NetPnL),
			formatPnL(t.EffectiveRisk),
			strconv.FormatFloat(t.RMultiple, 'f', 4, 64),
			strconv.FormatBool(t.UsedFallback),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// runSummaryDoc 是 YAML 汇总的文档结构。
type runSummaryDoc struct {
	Run    runSummaryHeader `yaml:"run"`
	Stats  RunStats         `yaml:"stats"`
	Config RunConfig        `yaml:"config"`
}

type runSummaryHeader struct {
	ID        string `yaml:"id"`
	Symbol    string `yaml:"symbol"`
	Profile   string `yaml:"profile,omitempty"`
	Timeframe string `yaml:"timeframe"`
	StartTS   int64  `yaml:"start_ts"`
	EndTS     int64  `yaml:"end_ts"`
	Status    string `yaml:"status"`
}

// WriteRunSummaryYAML 导出 run 的参数快照与汇总指标。
func WriteRunSummaryYAML(w io.Writer, run Run) error {
	doc := runSummaryDoc{
		Run: runSummaryHeader{
			ID:        run.ID,
			Symbol:    run.Symbol,
			Profile:   run.Profile,
			Timeframe: run.Timeframe,
			StartTS:   run.StartTS,
			EndTS:     run.EndTS,
			Status:    run.Status,
		},
		Stats:  run.Stats,
		Config: run.Config,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	return enc.Close()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPnL(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
