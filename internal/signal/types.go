package signal

import "orb/internal/market"

// Direction 表示建议方向。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Source 标记建议出自哪条策略。
type Source string

const (
	SourceORB         Source = "ORB"
	SourceEMAFallback Source = "EMA15_FALLBACK"
	SourceNone        Source = "NONE"
)

// Recommendation 是一次决策的输出，生成后不再修改。
type Recommendation struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence float64   `json:"confidence"`
	Source     Source    `json:"source"`
	Note       string    `json:"note,omitempty"`
}

// Directional 表示建议包含可执行方向。
func (r Recommendation) Directional() bool {
	return r.Direction == DirectionLong || r.Direction == DirectionShort
}

// DirectionSign 返回 +1/-1/0，用于盈亏符号。
func (r Recommendation) DirectionSign() float64 {
	switch r.Direction {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// None 构造空建议。
func None(symbol string) Recommendation {
	return Recommendation{Symbol: symbol, Direction: DirectionNone, Source: SourceNone}
}

// DecisionContext 描述一次决策的输入：决策时刻 now 与该时刻可用的
// 全量历史 K 线。每次调用构造一份，用完即弃。
type DecisionContext struct {
	Now     int64 // Unix ms，决策截止时刻
	Symbol  string
	Candles []market.Candle
}
