package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewPipelineRunsTotal 每次运行按终止阶段计数
// 标签说明：collector 采集器名称；stage 运行结束时所处阶段（collect/process/report/notify/done ...）
func (f *MetricFactory) NewPipelineRunsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by terminal stage",
		},
		[]string{"collector", "stage"},
	)
}

// NewPipelineRunDurationSeconds 单次运行耗时，抓取+渲染+发信，分桶覆盖 0.1s ~ 51s
func (f *MetricFactory) NewPipelineRunDurationSeconds() *prometheus.HistogramVec {
	return promauto.With(f.reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of one pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"collector"},
	)
}

func (f *MetricFactory) NewSchedulerSkippedRunsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_skipped_runs_total",
			Help: "Triggers skipped because the previous run was still in flight",
		},
		[]string{"collector"},
	)
}

func (f *MetricFactory) NewNotifierDeliveriesTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_deliveries_total",
			Help: "Notification deliveries by result",
		},
		[]string{"collector", "result"},
	)
}

func (f *MetricFactory) NewCollectorFetchErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_fetch_errors_total",
			Help: "Total fetch errors per collector",
		},
		[]string{"collector"},
	)
}

// Pipeline 调度与流水线使用的指标集合；nil 接收者上的方法不做任何事
type Pipeline struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	skipped     *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
}

func NewPipeline(f *MetricFactory) *Pipeline {
	return &Pipeline{
		runs:        f.NewPipelineRunsTotal(),
		duration:    f.NewPipelineRunDurationSeconds(),
		skipped:     f.NewSchedulerSkippedRunsTotal(),
		deliveries:  f.NewNotifierDeliveriesTotal(),
		fetchErrors: f.NewCollectorFetchErrorsTotal(),
	}
}

func (p *Pipeline) ObserveRun(collector, stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(collector, stage).Inc()
	p.duration.WithLabelValues(collector).Observe(d.Seconds())
}

func (p *Pipeline) SkippedRun(collector string) {
	if p == nil {
		return
	}
	p.skipped.WithLabelValues(collector).Inc()
}

func (p *Pipeline) Delivery(collector string, ok bool) {
	if p == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	p.deliveries.WithLabelValues(collector, result).Inc()
}

func (p *Pipeline) FetchError(collector string) {
	if p == nil {
		return
	}
	p.fetchErrors.WithLabelValues(collector).Inc()
}
