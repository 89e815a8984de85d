package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-01 00:00:00 UTC
const day0 = int64(1709251200000)

func mkSeries(start int64, step time.Duration, closes ...float64) []Candle {
	stepMs := step.Milliseconds()
	out := make([]Candle, 0, len(closes))
	for i, c := range closes {
		open := start + int64(i)*stepMs
		out = append(out, Candle{
			OpenTime:  open,
			CloseTime: open + stepMs,
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    10,
		})
	}
	return out
}

func TestCausalSliceToleranceBoundary(t *testing.T) {
	candles := mkSeries(day0, 5*time.Minute, 100, 101, 102)
	now := candles[1].CloseTime // 第二根刚收盘

	// 容差恰好覆盖第三根的收盘时间（now+5m）
	got := CausalSlice(candles, now, FeedTolerance)
	assert.Len(t, got, 3)

	// 超出容差 1ms 的 K 线必须被丢弃
	candles[2].CloseTime = now + FeedTolerance.Milliseconds() + 1
	got = CausalSlice(candles, now, FeedTolerance)
	assert.Len(t, got, 2)
}

func TestStrictSliceExcludesTolerance(t *testing.T) {
	candles := mkSeries(day0, 5*time.Minute, 100, 101, 102)
	now := candles[1].CloseTime

	strict := StrictSlice(candles, now)
	require.Len(t, strict, 2)
	assert.Equal(t, 101.0, strict[1].Close)
}

func TestCausalSliceAppendInvariance(t *testing.T) {
	base := mkSeries(day0, 5*time.Minute, 100, 101, 102, 103)
	now := base[1].CloseTime

	before := CausalSlice(base, now, FeedTolerance)

	// 追加远未来的 K 线不改变可见前缀
	future := mkSeries(day0+int64(time.Hour.Milliseconds()), 5*time.Minute, 110, 111)
	extended := append(append([]Candle{}, base...), future...)
	after := CausalSlice(extended, now, FeedTolerance)

	assert.Equal(t, before, after)
}

func TestValidateSeries(t *testing.T) {
	ok := mkSeries(day0, 5*time.Minute, 100, 101, 102)
	assert.NoError(t, ValidateSeries(ok))
	assert.NoError(t, ValidateSeries(nil))

	dup := mkSeries(day0, 5*time.Minute, 100, 101)
	dup[1].OpenTime = dup[0].OpenTime
	err := ValidateSeries(dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	bad := mkSeries(day0, 5*time.Minute, 100)
	bad[0].High = bad[0].Low - 1
	err = ValidateSeries(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	outOfBody := mkSeries(day0, 5*time.Minute, 100)
	outOfBody[0].Close = outOfBody[0].High + 1
	assert.ErrorIs(t, ValidateSeries(outOfBody), ErrDataIntegrity)
}

func TestDayHelpers(t *testing.T) {
	noon := day0 + 12*time.Hour.Milliseconds()
	assert.Equal(t, day0, DayStart(noon))
	assert.Equal(t, "2024-03-01", DayKey(noon))
	assert.Equal(t, "2024-03-01", Candle{OpenTime: noon}.DayKey())
}

func TestTimeframeAlignAndExpected(t *testing.T) {
	tf, err := ParseTimeframe("5m")
	require.NoError(t, err)

	start, end := tf.AlignRange(day0+1, day0+11*60_000)
	assert.Equal(t, day0, start)
	assert.Equal(t, day0+10*60_000, end)
	assert.Equal(t, int64(3), tf.ExpectedCandles(start, end))

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)
}
