package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the circulation engine's Prometheus metrics.
type Metrics struct {
	BooksIssued       prometheus.Counter
	BooksReturned     prometheus.Counter
	FeesCharged       prometheus.Counter
	Rejections        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BooksIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "circulation_books_issued_total",
			Help: "Total number of successful issues",
		}),
		BooksReturned: f.NewCounter(prometheus.CounterOpts{
			Name: "circulation_books_returned_total",
			Help: "Total number of successful returns",
		}),
		FeesCharged: f.NewCounter(prometheus.CounterOpts{
			Name: "circulation_fees_charged_total",
			Help: "Sum of fees charged on return, in currency units",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_rejections_total",
			Help: "Issue and return attempts rejected, by operation and error code",
		}, []string{"operation", "code"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circulation_operation_duration_seconds",
			Help:    "Latency of issue and return, including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.BooksIssued.Inc()
}

// ObserveReturn counts a return and the fee it charged.
func (m *Metrics) ObserveReturn(fee decimal.Decimal) {
	m.BooksReturned.Inc()
	m.FeesCharged.Add(fee.InexactFloat64())
}

func (m *Metrics) IncrementRejection(operation, code string) {
	m.Rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
