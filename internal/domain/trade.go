package domain

import "time"

// Bar is one OHLCV candle.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Trade is a completed buy/sell round trip at one ladder level.
// Immutable once appended to a trade log.
type Trade struct {
	BuyTime   time.Time `json:"buy_time"`
	SellTime  time.Time `json:"sell_time"`
	Level     int       `json:"level"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	Quantity  float64   `json:"quantity"`
	Cost      float64   `json:"cost"`    // quantity × buy price + buy fee
	Revenue   float64   `json:"revenue"` // quantity × sell price - sell fee
	Profit    float64   `json:"profit"`
	ROI       float64   `json:"roi"` // profit / cost
}

// Win reports whether the trade made money after fees.
func (t Trade) Win() bool { return t.Profit > 0 }

// HoldDuration is how long the position was open.
func (t Trade) HoldDuration() time.Duration { return t.SellTime.Sub(t.BuyTime) }

// Snapshot is the portfolio value at one processed bar or tick.
type Snapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
}

// SkipReason explains why a triggered level was not filled.
type SkipReason string

const (
	SkipInsufficientFunds SkipReason = "INSUFFICIENT_FUNDS"
)

// Skip records a triggered buy that the simulation could not afford.
// Skips are reported, never raised.
type Skip struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     int        `json:"level"`
	Reason    SkipReason `json:"reason"`
	Required  float64    `json:"required"`
	Available float64    `json:"available"`
}
