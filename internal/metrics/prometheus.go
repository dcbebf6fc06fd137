package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	running   prometheus.Gauge
	claims    prometheus.Counter
	dropped   prometheus.Counter
	retries   prometheus.Counter
	durations *prometheus.HistogramVec
}

var (
	runningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailops_executions_running",
		Help: "Number of task executions currently in flight",
	})
	claimCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailops_scheduler_claims_total",
		Help: "Total number of due tasks claimed by the scheduler",
	})
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailops_submissions_dropped_total",
		Help: "Total number of submissions dropped because the task was already running",
	})
	retryCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailops_retries_scheduled_total",
		Help: "Total number of retry executions scheduled",
	})
	executionHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailops_execution_duration_seconds",
		Help:    "Task execution duration by type and terminal status",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type", "status"})
)

func NewPrometheusObserver() SchedulerObserver {
	return &prometheusObserver{
		running:   runningGauge,
		claims:    claimCounter,
		dropped:   droppedCounter,
		retries:   retryCounter,
		durations: executionHistogram,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) IncRunning()    { p.running.Inc() }
func (p *prometheusObserver) DecRunning()    { p.running.Dec() }
func (p *prometheusObserver) RecordClaim()   { p.claims.Inc() }
func (p *prometheusObserver) RecordDropped() { p.dropped.Inc() }
func (p *prometheusObserver) RecordRetry()   { p.retries.Inc() }

func (p *prometheusObserver) RecordExecution(taskType, status string, duration time.Duration) {
	p.durations.WithLabelValues(taskType, status).Observe(duration.Seconds())
}
