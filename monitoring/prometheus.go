package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	orderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simtrade_order_insert_latency_milliseconds",
			Help:    "InsertOrder call latency in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"exchange_id", "offset"},
	)

	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simtrade_orders_total",
			Help: "Total orders submitted by terminal status",
		},
		[]string{"exchange_id", "status"},
	)

	tradeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simtrade_trade_volume_lots_total",
			Help: "Total filled volume in lots",
		},
		[]string{"exchange_id", "instrument_id", "direction"},
	)

	accountBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simtrade_account_balance",
			Help: "Current account balance",
		},
	)

	accountAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simtrade_account_available",
			Help: "Current available funds",
		},
	)

	accountRiskRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simtrade_account_risk_ratio",
			Help: "Current margin / balance risk ratio",
		},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simtrade_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simtrade_api_requests_total",
			Help: "Total API requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simtrade_api_request_duration_milliseconds",
			Help:    "API request duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"endpoint", "method"},
	)
)

// RecordOrderInsert records one InsertOrder call's latency and terminal
// status.
func RecordOrderInsert(exchangeID, offset, status string, latencyMs float64) {
	orderLatency.WithLabelValues(exchangeID, offset).Observe(latencyMs)
	orderTotal.WithLabelValues(exchangeID, status).Inc()
}

// RecordFill records one matched trade's volume.
func RecordFill(exchangeID, instrumentID, direction string, volumeLots float64) {
	tradeVolume.WithLabelValues(exchangeID, instrumentID, direction).Add(volumeLots)
}

// SetAccountGauges syncs the account balance sheet gauges after a call
// into the engine.
func SetAccountGauges(balance, available, riskRatio float64) {
	accountBalance.Set(balance)
	accountAvailable.Set(available)
	accountRiskRatio.Set(riskRatio)
}

// SetWebSocketConnections sets the current WebSocket connection count.
func SetWebSocketConnections(count int) {
	wsConnections.Set(float64(count))
}

// RecordAPIRequest records API request metrics.
func RecordAPIRequest(endpoint, method, status string, durationMs float64) {
	apiRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	apiRequestDuration.WithLabelValues(endpoint, method).Observe(durationMs)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// APIRequestMiddleware wraps an HTTP handler to record request metrics.
func APIRequestMiddleware(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(wrapped, r)
		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(endpoint, r.Method, http.StatusText(wrapped.statusCode), duration)
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
