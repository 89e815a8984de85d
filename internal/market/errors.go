package market

import "errors"

var (
	// ErrInsufficientData 表示因果过滤后没有足够的 K 线供策略使用。
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrDataIntegrity 表示 K 线序列乱序、重复或字段非法。
	ErrDataIntegrity = errors.New("candle data integrity violation")
)
