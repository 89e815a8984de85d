package market

import (
	"sort"
	"time"
)

// FeedTolerance 吸收行情源/时钟偏移：收盘时间落在 (now, now+5m] 的 K 线
// 仍被视为"当前可见"。它只影响可见性判断，指标计算必须用 StrictSlice。
const FeedTolerance = 5 * time.Minute

// CausalSlice 返回收盘时间 <= now+tolerance 的前缀视图。
// 序列必须按时间升序；返回值是原切片的子切片，调用方只读。
// 这是 no-lookahead 不变量唯一的执行点。
func CausalSlice(candles []Candle, now int64, tolerance time.Duration) []Candle {
	cutoff := now + tolerance.Milliseconds()
	idx := sort.Search(len(candles), func(i int) bool {
		return candles[i].CloseTime > cutoff
	})
	return candles[:idx]
}

// StrictSlice 返回收盘时间严格 <= now 的前缀视图，不带任何容差。
// 指标（EMA/ATR）必须在该子集上重算，防止容差把未来收盘价带进指标。
func StrictSlice(candles []Candle, now int64) []Candle {
	return CausalSlice(candles, now, 0)
}
