package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline counters exposed on /metrics.
type Metrics struct {
	BatchesTotal        *prometheus.CounterVec
	RowsTotal           *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	LastBatchTimestamp  prometheus.Gauge
	DroppedAuditRecords prometheus.Counter
}

// New registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_batches_total",
			Help: "ETL batches finished, by terminal status.",
		}, []string{"status"}),
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_rows_total",
			Help: "Rows handled by ETL steps, by table and result.",
		}, []string{"table", "result"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "etl_batch_duration_seconds",
			Help:    "Wall-clock duration of finished ETL batches.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastBatchTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "etl_last_batch_timestamp_seconds",
			Help: "Unix time of the most recently finished batch.",
		}),
		DroppedAuditRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "etl_dropped_audit_records_total",
			Help: "Audit or error records that could not be persisted and fell back to the diagnostic log.",
		}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
