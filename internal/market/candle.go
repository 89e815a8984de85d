package market

import (
	"fmt"
	"time"
)

// Candle 为单根 K 线，时间戳为 Unix 毫秒（UTC）。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// DayKey 返回 K 线所属的 UTC 交易日（YYYY-MM-DD）。
func (c Candle) DayKey() string {
	return DayKey(c.OpenTime)
}

// DayKey 将毫秒时间戳格式化为 UTC 日期键。
func DayKey(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02")
}

// DayStart 返回时间戳所属 UTC 日零点（毫秒）。
func DayStart(ts int64) int64 {
	t := time.UnixMilli(ts).UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.UnixMilli()
}

// ValidateSeries 校验序列有序、时间戳唯一且每根 K 线自洽。
// 任何违例都包装 ErrDataIntegrity 并带上第一处出错的下标。
func ValidateSeries(candles []Candle) error {
	var prev int64
	for i, c := range candles {
		if err := validateCandle(c); err != nil {
			return fmt.Errorf("%w: index %d: %v", ErrDataIntegrity, i, err)
		}
		if i > 0 && c.OpenTime <= prev {
			return fmt.Errorf("%w: index %d: open_time %d not after %d", ErrDataIntegrity, i, c.OpenTime, prev)
		}
		prev = c.OpenTime
	}
	return nil
}

func validateCandle(c Candle) error {
	switch {
	case c.OpenTime <= 0:
		return fmt.Errorf("open_time %d <= 0", c.OpenTime)
	case c.CloseTime <= c.OpenTime:
		return fmt.Errorf("close_time %d <= open_time %d", c.CloseTime, c.OpenTime)
	case c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0:
		return fmt.Errorf("non-positive price")
	case c.High < c.Low:
		return fmt.Errorf("high %.8f < low %.8f", c.High, c.Low)
	case c.Open > c.High || c.Open < c.Low:
		return fmt.Errorf("open %.8f outside [low, high]", c.Open)
	case c.Close > c.High || c.Close < c.Low:
		return fmt.Errorf("close %.8f outside [low, high]", c.Close)
	case c.Volume < 0:
		return fmt.Errorf("negative volume %.8f", c.Volume)
	}
	return nil
}
