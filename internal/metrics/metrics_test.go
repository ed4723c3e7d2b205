package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

func TestObserverCounters(t *testing.T) {
	m := New()
	m.OrderResult(types.SideBuy, "success")
	m.OrderResult(types.SideBuy, "success")
	m.OrderResult(types.SideSell, "rejected")
	m.EventFinished(domain.ConditionBuy, domain.StatusExecuted)
	m.BlockSignal()
	m.FetchRetry("ETIMEDOUT")
	m.SetPaused(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Orders.WithLabelValues("BUY", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("SELL", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("buy", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockSignals))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("ETIMEDOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Paused))

	m.SetPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Paused))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.BlockSignal()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "copybot_block_signals_total 1")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.BlockSignal()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BlockSignals))
}
