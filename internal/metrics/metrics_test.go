package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/gridbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillsCounter(t *testing.T) {
	c := metrics.Fills.WithLabelValues("metrics_test", "buy")
	before := testutil.ToFloat64(c)

	c.Inc()
	c.Inc()

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestGaugesSet(t *testing.T) {
	metrics.RealizedPnL.WithLabelValues("metrics_test").Set(12.5)
	metrics.BreakerOpen.WithLabelValues("metrics_test").Set(1)

	assert.Equal(t, 12.5, testutil.ToFloat64(metrics.RealizedPnL.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerOpen.WithLabelValues("metrics_test")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	metrics.BacktestRuns.WithLabelValues("metrics_test").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `gridbot_backtest_runs_total{strategy="metrics_test"}`)
}
