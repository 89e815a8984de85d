package backtest

import "github.com/shopspring/decimal"

// 价位触发判断走 decimal，避免 float64 在关键价位上的毛刺
// 把 stop/target 判成未触发。
func priceGTE(a, b float64) bool {
	return decimal.NewFromFloat(a).GreaterThanOrEqual(decimal.NewFromFloat(b))
}

func priceLTE(a, b float64) bool {
	return decimal.NewFromFloat(a).LessThanOrEqual(decimal.NewFromFloat(b))
}
