package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RouterMetrics struct {
	invoicesCreated prometheus.Counter
	deposits        prometheus.Counter
	confirmations   prometheus.Counter
	refunds         prometheus.Counter
	opFailures      *prometheus.CounterVec
	feePool         *prometheus.GaugeVec
}

var (
	routerOnce     sync.Once
	routerRegistry *RouterMetrics
)

// Router returns the process-wide settlement metrics, registering the
// collectors on first use.
func Router() *RouterMetrics {
	routerOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "router_invoices_created_total",
				Help: "Count of invoices created.",
			}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "router_deposits_total",
				Help: "Count of successful invoice deposits.",
			}),
			confirmations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "router_confirmations_total",
				Help: "Count of successful invoice confirmations.",
			}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "router_refunds_total",
				Help: "Count of successful invoice refunds.",
			}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "router_operation_failures_total",
				Help: "Count of rejected settlement operations by operation name.",
			}, []string{"op"}),
			feePool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "router_fee_pool",
				Help: "Accrued fee pool balance per token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			routerRegistry.invoicesCreated,
			routerRegistry.deposits,
			routerRegistry.confirmations,
			routerRegistry.refunds,
			routerRegistry.opFailures,
			routerRegistry.feePool,
		)
	})
	return routerRegistry
}

func (m *RouterMetrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

func (m *RouterMetrics) Deposited() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *RouterMetrics) Confirmed() {
	if m == nil {
		return
	}
	m.confirmations.Inc()
}

func (m *RouterMetrics) Refunded() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

func (m *RouterMetrics) OpFailed(op string) {
	if m == nil {
		return
	}
	m.opFailures.WithLabelValues(op).Inc()
}

// SetFeePool records the pool balance for dashboards. Precision above
// float64 is acceptable to lose here; the state manager stays exact.
func (m *RouterMetrics) SetFeePool(token string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.feePool.WithLabelValues(token).Set(value)
}
