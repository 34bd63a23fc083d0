package monitor

import "github.com/prometheus/client_golang/prometheus"

// -------------------------- exec 采集器指标结构体 --------------------------
// ExecCollectorMetrics exec 采集器自身指标，字段为 nil 时不记录
type ExecCollectorMetrics struct {
	Launches        *prometheus.CounterVec   // 子进程启动次数 {source}
	LaunchFailures  *prometheus.CounterVec   // 启动失败次数 {source, reason}
	Observations    *prometheus.CounterVec   // 成功解码的观测值 {kind}
	LinesSkipped    *prometheus.CounterVec   // 跳过的行 {reason}
	ActiveSources   prometheus.Gauge         // 当前活跃数据源
	RunDuration     *prometheus.HistogramVec // 单次采集周期耗时 {source}
	ChildCPUSeconds *prometheus.GaugeVec     // 子进程累计CPU时间 {source}
	ChildRSSBytes   *prometheus.GaugeVec     // 子进程常驻内存 {source}
	ConfigErrors    prometheus.Counter       // 启动时跳过的非法配置条目
}

// AgentMetrics 采集器通用指标
type AgentMetrics struct {
	CollectErrors   *prometheus.CounterVec
	CollectDuration *prometheus.HistogramVec
}
