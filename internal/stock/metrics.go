package stock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics exposes Prometheus collectors for ledger mutations.
type Metrics struct {
	operations *prometheus.CounterVec
	events     *prometheus.CounterVec
	untracked  *prometheus.CounterVec
	restocked  *prometheus.CounterVec
}

// NewMetrics registers the ledger metrics against registerer. A nil registerer
// falls back to the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_operations_total",
		Help: "Ledger operations partitioned by operation, category and outcome.",
	}, []string{"operation", "category", "outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_consumption_events_total",
		Help: "Consumption events written, split by tracked and untracked.",
	}, []string{"category", "kind"})
	untracked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_untracked_amount_total",
		Help: "Consumed quantity no batch could account for.",
	}, []string{"category"})
	restocked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_restocked_amount_total",
		Help: "Quantity added through restocks.",
	}, []string{"category"})
	registerer.MustRegister(operations, events, untracked, restocked)
	return &Metrics{operations: operations, events: events, untracked: untracked, restocked: restocked}
}

func (m *Metrics) observe(operation string, category Category, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, string(category), outcome).Inc()
}

func (m *Metrics) consumed(category Category, events []ConsumptionEvent) {
	if m == nil {
		return
	}
	for _, e := range events {
		if e.Untracked() {
			m.events.WithLabelValues(string(category), "untracked").Inc()
			m.untracked.WithLabelValues(string(category)).Add(e.Amount.InexactFloat64())
			continue
		}
		m.events.WithLabelValues(string(category), "batch").Inc()
	}
}

func (m *Metrics) restock(category Category, qty decimal.Decimal) {
	if m == nil {
		return
	}
	m.restocked.WithLabelValues(string(category)).Add(qty.InexactFloat64())
}
