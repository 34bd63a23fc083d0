package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/exec-collector/pkg/monitor"
)

// NewAgentCollectErrorsTotal 创建「采集器错误总数」指标
// 标签 collector: 采集器名称
func (m *MetricFactory) NewAgentCollectErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_collect_errors_total",
		Help: "Total collection errors",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewAgentCollectDurationSeconds 创建「采集耗时分布」指标，使用 Prometheus 默认分桶
func (m *MetricFactory) NewAgentCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_collect_duration_seconds",
		Help:    "Collection duration per collector",
		Buckets: prometheus.DefBuckets,
	}, []string{"collector"})
	m.reg.MustRegister(h)
	return h
}

// NewAgentMetrics 采集器通用指标
func (m *MetricFactory) NewAgentMetrics() monitor.AgentMetrics {
	return monitor.AgentMetrics{
		CollectErrors:   m.NewAgentCollectErrorsTotal(),
		CollectDuration: m.NewAgentCollectDurationSeconds(),
	}
}
