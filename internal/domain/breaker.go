package domain

import "time"

// CircuitBreaker pauses new ladder entries after consecutive losing trades
// and halts them for good once realized PnL falls below MaxDrawdown.
type CircuitBreaker struct {
	ConsecutiveLosses int
	MaxLosses         int
	CooldownUntil     time.Time
	CooldownDuration  time.Duration
	TotalPnL          float64
	MaxDrawdown       float64 // negative quote amount; 0 disables the hard stop
	Triggered         bool
	TriggeredReason   string
}

// IsOpen returns true if new buys are allowed at now.
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	if cb.Triggered {
		return false
	}
	return !now.Before(cb.CooldownUntil)
}

// Record feeds a closed trade's profit into the breaker.
func (cb *CircuitBreaker) Record(profit float64, now time.Time) {
	if profit < 0 {
		cb.recordLoss(profit, now)
		return
	}
	cb.ConsecutiveLosses = 0
	cb.TotalPnL += profit
}

func (cb *CircuitBreaker) recordLoss(loss float64, now time.Time) {
	cb.ConsecutiveLosses++
	cb.TotalPnL += loss
	if cb.MaxLosses > 0 && cb.ConsecutiveLosses >= cb.MaxLosses {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.ConsecutiveLosses = 0
		cb.TriggeredReason = "consecutive losses"
	}
	if cb.MaxDrawdown < 0 && cb.TotalPnL < cb.MaxDrawdown {
		cb.Triggered = true
		cb.TriggeredReason = "max drawdown exceeded"
	}
}
