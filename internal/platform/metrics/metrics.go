package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los contadores del core. Todos los métodos toleran receiver
// nil, así los services no necesitan métricas en tests.
type Metrics struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	ledgerOps   *prometheus.CounterVec
	reconciles  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pce",
			Name:      "state_transitions_total",
			Help:      "Transiciones de estado comprometidas, por agregado y resultado.",
		}, []string{"aggregate", "transition", "result"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pce",
			Name:      "ledger_operations_total",
			Help:      "Operaciones contra el ledger externo, por tipo y resultado.",
		}, []string{"op", "result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pce",
			Name:      "escrow_reconcile_total",
			Help:      "Resultados de cada pasada del reconciliador de escrows.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.transitions, m.ledgerOps, m.reconciles)
	return m
}

func (m *Metrics) Transition(aggregate, transition, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(aggregate, transition, result).Inc()
}

func (m *Metrics) LedgerOp(op, result string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Reconcile(result string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(result).Inc()
}

// Handler expone el registry en formato prometheus (GET /metrics).
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
