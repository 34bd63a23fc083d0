package collector

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/exec-collector/pkg/config"
	"github.com/exec-collector/pkg/execplugin"
	"github.com/exec-collector/pkg/logger"
	"github.com/exec-collector/pkg/metrics"
	"github.com/exec-collector/pkg/monitor"
)

// ExecCollector exec 采集器（实现 registers.Collector 接口）
type ExecCollector struct {
	name    string
	cfg     *config.ExecConfig
	sink    execplugin.Sink
	coord   *execplugin.Coordinator
	metrics *monitor.ExecCollectorMetrics
	agent   monitor.AgentMetrics
}

// BuildSources 合并结构化 programs 与原始 "user command" 行
// 返回全部合法数据源，非法条目的错误合并后一起返回
func BuildSources(cfg *config.ExecConfig) ([]*execplugin.Source, error) {
	sources := make([]*execplugin.Source, 0, len(cfg.Programs)+len(cfg.Exec))
	var errs error
	for i, p := range cfg.Programs {
		src, err := execplugin.NewSource(p.User, p.Command)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("programs[%d]: %w", i, err))
			continue
		}
		sources = append(sources, src)
	}
	for i, line := range cfg.Exec {
		src, err := execplugin.ParseSourceLine(line)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("exec[%d]: %w", i, err))
			continue
		}
		sources = append(sources, src)
	}
	return sources, errs
}

// warnDuplicates 重复的 (user, command) 仍作为独立数据源运行
func warnDuplicates(sources []*execplugin.Source) {
	seen := make(map[string]int, len(sources))
	for _, src := range sources {
		seen[src.Name()]++
	}
	for name, n := range seen {
		if n > 1 {
			logger.Warn("exec plugin: program configured more than once, each copy runs independently",
				zap.String("source", name),
				zap.Int("copies", n))
		}
	}
}

// NewExecCollector 创建 exec 采集器，opts 追加在默认选项之后
func NewExecCollector(cfg *config.ExecConfig, sink execplugin.Sink, metricFactory *metrics.MetricFactory, opts ...execplugin.Option) (*ExecCollector, error) {
	execMetrics := metricFactory.NewExecCollectorMetrics()
	sources, err := BuildSources(cfg)
	for _, e := range multierr.Errors(err) {
		logger.Error("exec plugin: invalid program entry, skipped", zap.Error(e))
		execMetrics.ConfigErrors.Inc()
	}
	if len(sources) == 0 {
		if closer, ok := sink.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("%w: no valid programs configured", execplugin.ErrInvalidSource)
	}
	warnDuplicates(sources)

	base := []execplugin.Option{
		execplugin.WithTimeout(cfg.Timeout),
		execplugin.WithMaxLineBytes(cfg.MaxLineBytes),
		execplugin.WithMetrics(execMetrics),
	}
	return &ExecCollector{
		name:    execplugin.PluginName,
		cfg:     cfg,
		sink:    sink,
		coord:   execplugin.New(sources, sink, append(base, opts...)...),
		metrics: execMetrics,
		agent:   metricFactory.NewAgentMetrics(),
	}, nil
}

// Name 返回采集器名称
func (c *ExecCollector) Name() string { return c.name }

// Coordinator 返回底层调度器
func (c *ExecCollector) Coordinator() *execplugin.Coordinator { return c.coord }

// Init 解析主机名并打印数据源
func (c *ExecCollector) Init() error {
	hostname := c.cfg.Hostname
	if hostname == "" {
		info, err := host.Info()
		if err != nil {
			logger.Warn("detect hostname failed, using localhost", zap.Error(err))
			hostname = "localhost"
		} else {
			hostname = info.Hostname
		}
	}
	c.coord.SetHostname(hostname)

	names := make([]string, 0, len(c.coord.Sources()))
	for _, src := range c.coord.Sources() {
		names = append(names, src.Name())
	}
	logger.Info("exec collector initialized",
		zap.String("hostname", hostname),
		zap.Strings("sources", names),
		zap.Duration("timeout", c.cfg.Timeout))
	return nil
}

// Collect 启动空闲数据源的采集周期，不等待子进程结束
func (c *ExecCollector) Collect(ctx context.Context) error {
	start := time.Now()
	defer func() {
		c.agent.CollectDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}()

	runs := c.coord.Poll(ctx)
	logger.Debug("exec poll",
		zap.Int("started", len(runs)),
		zap.Int("active", c.coord.ActiveCount()),
		zap.Int("sources", len(c.coord.Sources())))

	go c.watch(runs)
	c.sampleChildren()
	return nil
}

// watch 统计失败的采集周期
func (c *ExecCollector) watch(runs []*execplugin.Run) {
	for _, run := range runs {
		res, ok := <-run.Done()
		if ok && res.Err != nil {
			c.agent.CollectErrors.WithLabelValues(c.name).Inc()
		}
	}
}

// sampleChildren 记录仍在运行的子进程的 CPU 和内存
func (c *ExecCollector) sampleChildren() {
	for _, src := range c.coord.Sources() {
		name := src.Name()
		pid := src.PID()
		if pid == 0 {
			c.metrics.ChildCPUSeconds.DeleteLabelValues(name)
			c.metrics.ChildRSSBytes.DeleteLabelValues(name)
			continue
		}
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			// 已退出
			continue
		}
		if times, err := p.Times(); err == nil {
			c.metrics.ChildCPUSeconds.WithLabelValues(name).Set(times.User + times.System)
		}
		if mem, err := p.MemoryInfo(); err == nil {
			c.metrics.ChildRSSBytes.WithLabelValues(name).Set(float64(mem.RSS))
		}
	}
}

// Close 不等待仍在运行的子进程；sink 实现了 io.Closer 时一并关闭
func (c *ExecCollector) Close() error {
	if n := c.coord.ActiveCount(); n > 0 {
		logger.Warn("exec collector closing with active sources", zap.Int("active", n))
	}
	if closer, ok := c.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
