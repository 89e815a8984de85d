package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/internal/config"
)

const profilesYAML = `
profiles:
  Conservative:
    default: true
    symbols: [btcusdt, BTCUSDT, ethusdt]
    risk_per_trade: 0.005
    leverage: 1
    take_profit_r: 1.5
  aggressive:
    symbols: [BTCUSDT]
    risk_per_trade: 0.02
    range_minutes: 15
    pullback_atr: 1.5
`

func writeProfiles(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProfileLoaderSnapshot(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), profilesYAML)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()

	snap := l.Snapshot()
	assert.Equal(t, "conservative", snap.DefaultName)
	assert.Equal(t, []string{"aggressive", "conservative"}, snap.Names())

	// 空名称回落到默认 profile；大小写不敏感
	def, ok := snap.Get("")
	require.True(t, ok)
	assert.Equal(t, "conservative", def.Name)
	_, ok = snap.Get("AGGRESSIVE")
	assert.True(t, ok)
	_, ok = snap.Get("unknown")
	assert.False(t, ok)

	// symbols 去重并归一化大写
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, def.SymbolsUpper())
}

func TestProfileApplyMergesOverBase(t *testing.T) {
	base := config.StrategyConfig{
		InitialCapital: 1000,
		Leverage:       2,
		RiskPerTrade:   0.01,
		ORB:            config.ORBConfig{RangeMinutes: 30, EntryWindowMinutes: 120, TakeProfitR: 2},
		EMAFallback:    config.EMAConfig{EMAPeriod: 15, ATRPeriod: 14, TrendWindow: 3, PullbackATR: 1, TakeProfitR: 1.5},
	}
	def := ProfileDefinition{RiskPerTrade: 0.02, RangeMinutes: 15, PullbackATR: 1.5}

	merged := def.Apply(base)
	assert.InDelta(t, 0.02, merged.RiskPerTrade, 1e-9)
	assert.Equal(t, 15, merged.ORB.RangeMinutes)
	assert.InDelta(t, 1.5, merged.EMAFallback.PullbackATR, 1e-9)
	// 零值字段沿用基础配置
	assert.InDelta(t, 1000.0, merged.InitialCapital, 1e-9)
	assert.InDelta(t, 2.0, merged.Leverage, 1e-9)
	assert.Equal(t, 120, merged.ORB.EntryWindowMinutes)
	// 入参不被修改
	assert.InDelta(t, 0.01, base.RiskPerTrade, 1e-9)
}

func TestProfileLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeProfiles(t, dir, profilesYAML)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Watch())

	v1 := l.Snapshot().Version
	updated := profilesYAML + `
  scalper:
    symbols: [SOLUSDT]
    risk_per_trade: 0.03
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		snap := l.Snapshot()
		_, ok := snap.Get("scalper")
		return ok && snap.Version > v1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestProfileLoaderBadFileKeepsOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeProfiles(t, dir, profilesYAML)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Watch())

	before := l.Snapshot()
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}"), 0o644))

	// 坏文件不得替换旧快照
	time.Sleep(200 * time.Millisecond)
	after := l.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	_, ok := after.Get("conservative")
	assert.True(t, ok)
}

func TestProfileLoaderRejectsEmpty(t *testing.T) {
	_, err := NewProfileLoader("")
	assert.Error(t, err)

	path := writeProfiles(t, t.TempDir(), "profiles: {}")
	_, err = NewProfileLoader(path)
	assert.Error(t, err)

	// 名称全部归一化为空时同样拒绝，不得 panic
	path = writeProfiles(t, t.TempDir(), `
profiles:
  " ":
    risk_per_trade: 0.01
`)
	_, err = NewProfileLoader(path)
	assert.Error(t, err)
}
