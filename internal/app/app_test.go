package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/internal/backtest"
	"orb/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profiles, []byte(`
profiles:
  standard:
    default: true
    risk_per_trade: 0.01
`), 0o644))

	return &config.Config{
		App: config.AppConfig{Env: "test", LogLevel: "warn", HTTPAddr: ":0"},
		Data: config.DataConfig{
			Root:         filepath.Join(dir, "candles"),
			Source:       "binance",
			Timeframe:    "5m",
			ProfilesPath: profiles,
		},
		Backtest: config.BacktestConfig{
			ResultsPath: filepath.Join(dir, "results.db"),
			ReportDir:   filepath.Join(dir, "reports"),
		},
	}
}

func TestNewAppWiring(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer a.close()

	sim := a.Simulator()
	require.NotNil(t, sim)

	// 提交入口可用：非法参数被模拟器拒绝而不是 panic
	_, err = sim.Submit(backtest.RunConfig{})
	assert.Error(t, err)
}

func TestNewAppRejectsUnknownSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Source = "kraken"
	_, err := NewApp(cfg)
	assert.Error(t, err)
}

func TestNewAppNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}
