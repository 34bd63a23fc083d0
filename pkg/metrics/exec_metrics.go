package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/exec-collector/pkg/monitor"
)

// -------------------------- exec 采集器自身指标 --------------------------

func (m *MetricFactory) NewExecLaunchesTotal() *prometheus.CounterVec {
	return promauto.With(m.reg).NewCounterVec(prometheus.CounterOpts{
		Name: "exec_launches_total",
		Help: "Number of child processes started per source",
	}, []string{"source"})
}

func (m *MetricFactory) NewExecLaunchFailuresTotal() *prometheus.CounterVec {
	return promauto.With(m.reg).NewCounterVec(prometheus.CounterOpts{
		Name: "exec_launch_failures_total",
		Help: "Number of failed launch attempts per source and reason",
	}, []string{"source", "reason"})
}

func (m *MetricFactory) NewExecObservationsTotal() *prometheus.CounterVec {
	return promauto.With(m.reg).NewCounterVec(prometheus.CounterOpts{
		Name: "exec_observations_total",
		Help: "Number of decoded observations dispatched to the sink",
	}, []string{"kind"})
}

func (m *MetricFactory) NewExecLinesSkippedTotal() *prometheus.CounterVec {
	return promauto.With(m.reg).NewCounterVec(prometheus.CounterOpts{
		Name: "exec_lines_skipped_total",
		Help: "Number of child output lines that produced no observation",
	}, []string{"reason"})
}

func (m *MetricFactory) NewExecActiveSources() prometheus.Gauge {
	return promauto.With(m.reg).NewGauge(prometheus.GaugeOpts{
		Name: "exec_active_sources",
		Help: "Number of sources with a collection cycle in flight",
	})
}

func (m *MetricFactory) NewExecRunDurationSeconds() *prometheus.HistogramVec {
	return promauto.With(m.reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exec_run_duration_seconds",
		Help:    "Duration of one collection cycle, from launch to end of output",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s ~ 20s
	}, []string{"source"})
}

func (m *MetricFactory) NewExecChildCPUSeconds() *prometheus.GaugeVec {
	return promauto.With(m.reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "exec_child_cpu_seconds",
		Help: "User+system CPU time of the running child process",
	}, []string{"source"})
}

func (m *MetricFactory) NewExecChildRSSBytes() *prometheus.GaugeVec {
	return promauto.With(m.reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "exec_child_rss_bytes",
		Help: "Resident set size of the running child process",
	}, []string{"source"})
}

func (m *MetricFactory) NewExecConfigErrorsTotal() prometheus.Counter {
	return promauto.With(m.reg).NewCounter(prometheus.CounterOpts{
		Name: "exec_config_errors_total",
		Help: "Number of program entries skipped at startup because they were invalid",
	})
}

// NewExecCollectorMetrics 一次性创建 exec 采集器全部指标
func (m *MetricFactory) NewExecCollectorMetrics() *monitor.ExecCollectorMetrics {
	return &monitor.ExecCollectorMetrics{
		Launches:        m.NewExecLaunchesTotal(),
		LaunchFailures:  m.NewExecLaunchFailuresTotal(),
		Observations:    m.NewExecObservationsTotal(),
		LinesSkipped:    m.NewExecLinesSkippedTotal(),
		ActiveSources:   m.NewExecActiveSources(),
		RunDuration:     m.NewExecRunDurationSeconds(),
		ChildCPUSeconds: m.NewExecChildCPUSeconds(),
		ChildRSSBytes:   m.NewExecChildRSSBytes(),
		ConfigErrors:    m.NewExecConfigErrorsTotal(),
	}
}
