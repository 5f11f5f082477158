// Package metrics provides Prometheus instrumentation for the grid bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BacktestRuns counts completed backtests per strategy.
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_backtest_runs_total",
		Help: "Total number of completed backtest runs",
	}, []string{"strategy"})

	// BacktestBars counts bars simulated across all backtests.
	BacktestBars = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_backtest_bars_total",
		Help: "Total number of bars processed by the backtest engine",
	})

	// Fills counts ladder fills, partitioned by strategy and side.
	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_fills_total",
		Help: "Ladder level fills",
	}, []string{"strategy", "side"})

	// Skips counts triggered buys that were not filled.
	Skips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_skips_total",
		Help: "Triggered buys skipped",
	}, []string{"strategy", "reason"})

	// RealizedPnL tracks realized profit per strategy in quote currency.
	RealizedPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_realized_pnl",
		Help: "Realized profit in quote currency",
	}, []string{"strategy"})

	// PortfolioValue tracks cash plus marked positions.
	PortfolioValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_portfolio_value",
		Help: "Cash plus open positions marked at the last price",
	}, []string{"strategy"})

	// ActiveLevels tracks levels currently holding a position.
	ActiveLevels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_active_levels",
		Help: "Ladder levels holding an open position",
	}, []string{"strategy"})

	// BreakerOpen is 1 while the circuit breaker blocks new buys.
	BreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_breaker_blocking",
		Help: "1 while the circuit breaker blocks new entries",
	}, []string{"strategy"})

	// APIRequests counts exchange API requests by endpoint and status.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_api_requests_total",
		Help: "Exchange API requests",
	}, []string{"endpoint", "status"})

	// APIRequestDuration tracks exchange API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridbot_api_request_duration_seconds",
		Help:    "Exchange API request duration in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"endpoint"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
