package metrics

import (
	"CoinPull/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	appends     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	retries     *prometheus.CounterVec
	taskStatus  *prometheus.CounterVec
	activeTasks prometheus.Gauge
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		appends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_records_total",
				Help: "Record store append outcomes",
			},
			[]string{"exchange", "metric", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_retries_total",
				Help: "Exchange calls retried after a transient failure",
			},
			[]string{"exchange", "kind"},
		),
		taskStatus: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_tasks_finished_total",
				Help: "Collection tasks by terminal status",
			},
			[]string{"exchange", "status"},
		),
		activeTasks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinpull_tasks_active",
				Help: "Collection tasks currently running",
			},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpull_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"exchange", "symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordAppend(exchange string, metric models.Metric, result string) {
	r.appends.WithLabelValues(exchange, string(metric), result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordRetry(exchange, kind string) {
	r.retries.WithLabelValues(exchange, kind).Inc()
}

func (r *Recorder) RecordTaskStatus(exchange string, status models.TaskStatus) {
	r.taskStatus.WithLabelValues(exchange, string(status)).Inc()
}

func (r *Recorder) RecordActiveTasks(delta int) {
	r.activeTasks.Add(float64(delta))
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(exchange, symbol string, price float64) {
	r.lastPrice.WithLabelValues(exchange, symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAppend(string, models.Metric, string) {}
func (Nop) RecordError(string)                         {}
func (Nop) RecordRetry(string, string)                 {}
func (Nop) RecordTaskStatus(string, models.TaskStatus) {}
func (Nop) RecordActiveTasks(int)                      {}
func (Nop) RecordLastPrice(string, string, float64)    {}
func (Nop) RecordLatency(string, float64)              {}
