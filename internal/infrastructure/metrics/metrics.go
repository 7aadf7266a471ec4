package metrics

import (
	"net/http"

	"coinbook/internal/application/service"
	"coinbook/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Recorder exports ledger activity as Prometheus metrics.
type Recorder struct {
	reg prometheus.Gatherer

	tradesTotal    *prometheus.CounterVec
	tradeValue     *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	funds          *prometheus.GaugeVec
	totalBalance   *prometheus.GaugeVec
	openPositions  *prometheus.GaugeVec
	cyclesTotal    *prometheus.CounterVec
	cycleFailures  *prometheus.CounterVec
	cycleDurations *prometheus.HistogramVec
}

// New registers the ledger metrics on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		reg: reg,
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinbook_trades_total",
				Help: "Total number of trades executed",
			},
			[]string{"namespace", "side", "currency"},
		),
		tradeValue: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinbook_trade_value_base",
				Help:    "Distribution of trade values in base currency",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"namespace", "side"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinbook_errors_total",
				Help: "Total number of failed ledger operations",
			},
			[]string{"namespace", "op", "kind"},
		),
		funds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinbook_funds_base",
				Help: "Funds of a namespace in base currency",
			},
			[]string{"namespace"},
		),
		totalBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinbook_total_balance_base",
				Help: "Funds plus open positions in base currency",
			},
			[]string{"namespace"},
		),
		openPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinbook_open_positions",
				Help: "Number of open positions",
			},
			[]string{"namespace"},
		),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinbook_cycles_total",
				Help: "Total number of completed cycles",
			},
			[]string{"namespace", "kind"},
		),
		cycleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinbook_cycle_failures_total",
				Help: "Items that failed inside a cycle",
			},
			[]string{"namespace", "kind", "stage"},
		),
		cycleDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinbook_cycle_duration_seconds",
				Help:    "Cycle wall time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "kind"},
		),
	}

	reg.MustRegister(
		r.tradesTotal,
		r.tradeValue,
		r.errorsTotal,
		r.funds,
		r.totalBalance,
		r.openPositions,
		r.cyclesTotal,
		r.cycleFailures,
		r.cycleDurations,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal) {
	r.tradesTotal.WithLabelValues(namespace, side, currency).Inc()
	r.tradeValue.WithLabelValues(namespace, side).Observe(baseValue.InexactFloat64())
}

func (r *Recorder) OperationFailed(namespace, op, kind string) {
	r.errorsTotal.WithLabelValues(namespace, op, kind).Inc()
}

func (r *Recorder) BalanceObserved(sheet *model.BalanceSheet) {
	r.funds.WithLabelValues(sheet.Namespace).Set(sheet.Funds.InexactFloat64())
	r.totalBalance.WithLabelValues(sheet.Namespace).Set(sheet.Total.InexactFloat64())
	r.openPositions.WithLabelValues(sheet.Namespace).Set(float64(len(sheet.Positions)))
}

func (r *Recorder) CycleCompleted(report *model.CycleReport) {
	kind := string(report.Kind)
	r.cyclesTotal.WithLabelValues(report.Namespace, kind).Inc()
	r.cycleDurations.WithLabelValues(report.Namespace, kind).Observe(report.EndedAt.Sub(report.StartedAt).Seconds())
	for _, f := range report.Failures {
		r.cycleFailures.WithLabelValues(report.Namespace, kind, f.Stage).Inc()
	}
}

var _ service.Recorder = (*Recorder)(nil)
