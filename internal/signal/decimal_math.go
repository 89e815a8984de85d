package signal

import (
	"math"

	"github.com/shopspring/decimal"
)

// 价格水平比较统一走 decimal，避免 float 累积误差把贴边的
// 突破/触线判成另一侧。

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalGT(a, b float64) bool  { return decimalCompare(a, b) > 0 }
func decimalLT(a, b float64) bool  { return decimalCompare(a, b) < 0 }
func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
