// Package metrics 以 Prometheus 格式暴露执行与网络层的计数。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
)

// Metrics 一组独立注册的指标，测试中可多实例并存
type Metrics struct {
	registry *prometheus.Registry

	Orders       *prometheus.CounterVec
	Events       *prometheus.CounterVec
	FetchRetries *prometheus.CounterVec
	BlockSignals prometheus.Counter
	Paused       prometheus.Gauge
	RateWindow   prometheus.Gauge
	Unhandled    prometheus.Gauge
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copybot_orders_total",
				Help: "Orders submitted, by side and result (success|rejected|error)",
			},
			[]string{"side", "result"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copybot_events_total",
				Help: "Trade events finished, by condition and terminal status",
			},
			[]string{"condition", "status"},
		),
		FetchRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copybot_fetch_retries_total",
				Help: "Network-class read failures that were retried, by error code",
			},
			[]string{"code"},
		),
		BlockSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copybot_block_signals_total",
			Help: "Responses classified as a venue block",
		}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copybot_paused",
			Help: "1 while the circuit breaker holds a global pause",
		}),
		RateWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copybot_rate_window",
			Help: "Requests inside the current rate-limit window",
		}),
		Unhandled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copybot_unhandled_events",
			Help: "Stored trade events not yet handled",
		}),
	}
	m.registry.MustRegister(
		m.Orders, m.Events, m.FetchRetries, m.BlockSignals,
		m.Paused, m.RateWindow, m.Unhandled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回内部注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OrderResult(side types.Side, result string) {
	m.Orders.WithLabelValues(string(side), result).Inc()
}

func (m *Metrics) EventFinished(cond domain.Condition, status domain.Status) {
	m.Events.WithLabelValues(string(cond), string(status)).Inc()
}

func (m *Metrics) BlockSignal() {
	m.BlockSignals.Inc()
}

// FetchRetry 作为 fetch.WithRetryHook 的回调
func (m *Metrics) FetchRetry(code string) {
	m.FetchRetries.WithLabelValues(code).Inc()
}

// SetPaused 断路器状态
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
		return
	}
	m.Paused.Set(0)
}
