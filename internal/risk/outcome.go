package risk

import "orb/internal/config"

// Outcome 汇总一笔已了结交易的盈亏，是绩效数据的唯一出处，
// 其它层只读 Trade 上挂的这份结果，不得重算。
type Outcome struct {
	GrossPnL   float64 `json:"gross_pnl_usdt"`
	Commission float64 `json:"commission_usdt"`
	Slippage   float64 `json:"slippage_usdt"`
	NetPnL     float64 `json:"net_pnl_usdt"`
	RMultiple  float64 `json:"r_multiple"`
}

// Evaluate 计算净盈亏与 R 倍数。
//
// 手续费与滑点在进出两腿各收一次；R 用实际承担的美元风险
// （杠杆钳制后的 effectiveRisk）做分母，避免在资金受限、仓位被
// 压缩时夸大策略优势。effectiveRisk == 0 时 R 记 0（退化交易，
// 不是错误）。
func Evaluate(entry, exit, size, directionSign, effectiveRisk float64, costs config.CostsConfig) Outcome {
	gross := (exit - entry) * size * directionSign
	turnover := (entry + exit) * size
	commission := turnover * costs.CommissionRate
	slippage := turnover * costs.SlippageBps / 10_000
	net := gross - commission - slippage
	r := 0.0
	if effectiveRisk > 0 {
		r = net / effectiveRisk
	}
	return Outcome{
		GrossPnL:   gross,
		Commission: commission,
		Slippage:   slippage,
		NetPnL:     net,
		RMultiple:  r,
	}
}
