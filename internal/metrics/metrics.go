// Package metrics registers the Prometheus series the bot updates during
// operation, served at /metrics by the control server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode", "side"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_decisions_total",
			Help: "Decision-provider outcomes",
		},
		[]string{"action"},
	)

	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Closed positions split by exit reason and side",
		},
		[]string{"reason", "side"},
	)

	ConcurrencyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_concurrency_rejections_total",
			Help: "Open or close attempts skipped because an operation was already in flight",
		},
		[]string{"op"},
	)

	ExposureRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_exposure_rejections_total",
			Help: "Opens rejected by the exposure cap",
		},
	)

	GatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_gateway_errors_total",
			Help: "Exchange gateway call failures",
		},
		[]string{"op"},
	)

	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_balance_usd",
			Help: "Account balance in quote currency",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Number of open positions",
		},
	)

	MarginUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_margin_used_usd",
			Help: "Aggregate margin locked in open positions",
		},
	)

	TodayPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_today_pnl_usd",
			Help: "Realized net P&L for the current day",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		DecisionsTotal,
		ExitsTotal,
		ConcurrencyRejections,
		ExposureRejections,
		GatewayErrors,
		Balance,
		OpenPositions,
		MarginUsed,
		TodayPnl,
	)
}
