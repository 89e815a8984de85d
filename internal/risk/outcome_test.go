package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orb/internal/config"
)

var testCosts = config.CostsConfig{CommissionRate: 0.0004, SlippageBps: 2}

func TestEvaluateLongTargetHit(t *testing.T) {
	// 105 → 115，2 个，有效风险 10 USDT
	out := Evaluate(105, 115, 2, 1, 10, testCosts)

	assert.InDelta(t, 20.0, out.GrossPnL, 1e-9)
	assert.InDelta(t, 0.176, out.Commission, 1e-9) // (105+115)*2*0.0004
	assert.InDelta(t, 0.088, out.Slippage, 1e-9)   // (105+115)*2*2bps
	assert.InDelta(t, 19.736, out.NetPnL, 1e-9)
	assert.InDelta(t, 1.9736, out.RMultiple, 1e-9)
}

func TestEvaluateShortSignConsistency(t *testing.T) {
	// 空头下跌盈利
	win := Evaluate(100, 90, 1, -1, 10, config.CostsConfig{})
	assert.InDelta(t, 10.0, win.GrossPnL, 1e-9)
	assert.InDelta(t, 1.0, win.RMultiple, 1e-9)

	// 空头上涨亏损
	loss := Evaluate(100, 110, 1, -1, 10, config.CostsConfig{})
	assert.InDelta(t, -10.0, loss.GrossPnL, 1e-9)
	assert.InDelta(t, -1.0, loss.RMultiple, 1e-9)
}

func TestEvaluateStopHitLosesAboutOneR(t *testing.T) {
	out := Evaluate(105, 100, 2, 1, 10, testCosts)
	assert.InDelta(t, -10.0, out.GrossPnL, 1e-9)
	// 净亏略超 1R（成本拖累）
	assert.Less(t, out.RMultiple, -1.0)
	assert.Greater(t, out.RMultiple, -1.1)
}

func TestEvaluateZeroRiskDegenerate(t *testing.T) {
	out := Evaluate(100, 110, 1, 1, 0, config.CostsConfig{})
	assert.InDelta(t, 10.0, out.GrossPnL, 1e-9)
	assert.Zero(t, out.RMultiple)
}

func TestEvaluateCostsChargedBothLegs(t *testing.T) {
	out := Evaluate(100, 100, 1, 1, 5, testCosts)
	assert.Zero(t, out.GrossPnL)
	assert.InDelta(t, 200*0.0004, out.Commission, 1e-9)
	assert.InDelta(t, 200*0.0002, out.Slippage, 1e-9)
	assert.Negative(t, out.NetPnL)
}
