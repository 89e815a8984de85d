package backtest

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteTradesCSV(t *testing.T) {
	trades := []Trade{
		{
			DayKey: "2024-03-01", EntryTime: day0 + 120*minMs, Side: "long",
			EntryPrice: 105, StopLoss: 100, TakeProfit: 115,
			ExitTime: day0 + 125*minMs, ExitPrice: 115, ExitReason: ExitTargetHit,
			PositionSize: 2, GrossPnL: 20, NetPnL: 19.736, EffectiveRisk: 10,
			RMultiple: 1.9736, UsedFallback: false,
		},
		{
			DayKey: "2024-03-02", Side: "short", ExitReason: ExitStopHit,
			NetPnL: -10.2, RMultiple: -1.02, UsedFallback: true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, trades))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "day_key", rows[0][0])
	assert.Equal(t, "2024-03-01", rows[1][0])
	assert.Equal(t, "target_hit", rows[1][8])
	assert.Equal(t, "true", rows[2][14])
}

func TestWriteRunSummaryYAML(t *testing.T) {
	run := Run{
		ID:        "run-42",
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		Status:    RunStatusDone,
		StartTS:   day0,
		EndTS:     day0 + dayMillis,
		Stats:     RunStats{Trades: 3, Wins: 2, TotalNetPnL: 15},
		CreatedAt: time.Now(),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRunSummaryYAML(&buf, run))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	header, ok := doc["run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-42", header["id"])
	assert.Equal(t, "BTCUSDT", header["symbol"])
}
