package execplugin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/exec-collector/pkg/logger"
	"github.com/exec-collector/pkg/monitor"
)

// PluginName 每个下发值的 plugin 字段
const PluginName = "exec"

// ValueList 观测值加上 sink 需要的来源信息
type ValueList struct {
	Observation
	Host           string
	Plugin         string
	PluginInstance string
}

// Sink 接收解码后的值，实现必须并发安全，否则需包一层单写者队列
type Sink interface {
	Dispatch(vl ValueList) error
}

// RunResult 单个数据源一次采集周期的结果
type RunResult struct {
	Source       *Source
	PID          int
	Observations int
	Skipped      int
	Err          error
	Started      time.Time
	Finished     time.Time
}

// Run 已启动 worker 的句柄，调用方可以不关心
type Run struct {
	Source *Source
	done   chan RunResult
}

// Done 只产出一次结果随后关闭
func (r *Run) Done() <-chan RunResult {
	return r.done
}

// Coordinator 持有全部数据源，每次 Poll 为空闲数据源各启动一个 worker
type Coordinator struct {
	sources      []*Source
	sink         Sink
	launcher     Launcher
	hostname     string
	timeout      time.Duration
	maxLineBytes int
	now          func() time.Time
	metrics      *monitor.ExecCollectorMetrics
}

// Option 配置 Coordinator
type Option func(*Coordinator)

func WithLauncher(l Launcher) Option {
	return func(c *Coordinator) { c.launcher = l }
}

func WithHostname(host string) Option {
	return func(c *Coordinator) { c.hostname = host }
}

// WithTimeout 子进程运行超过 d 后终止，0 表示不限制
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithMaxLineBytes(n int) Option {
	return func(c *Coordinator) { c.maxLineBytes = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithMetrics(m *monitor.ExecCollectorMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New 基于固定数据源集合创建调度器
func New(sources []*Source, sink Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		sources:      append([]*Source(nil), sources...),
		sink:         sink,
		launcher:     NewProcessLauncher(),
		hostname:     "localhost",
		maxLineBytes: DefaultMaxLineBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sources 返回配置的数据源
func (c *Coordinator) Sources() []*Source {
	return append([]*Source(nil), c.sources...)
}

// ActiveCount 当前正在采集的数据源数量
func (c *Coordinator) ActiveCount() int {
	n := 0
	for _, src := range c.sources {
		if src.Active() {
			n++
		}
	}
	return n
}

// SetHostname 更新后续 Poll 下发值的 host
func (c *Coordinator) SetHostname(host string) {
	c.hostname = host
}

// Poll 为每个空闲数据源启动 worker，不等待结束
// 仍在运行的数据源直接跳过
func (c *Coordinator) Poll(ctx context.Context) []*Run {
	runs := make([]*Run, 0, len(c.sources))
	hostname := c.hostname
	for _, src := range c.sources {
		if !src.TryAcquire() {
			logger.Debug("exec source still active, skipping",
				zap.String("source", src.Name()),
				zap.Int("pid", src.PID()),
				zap.Stringer("state", src.State()))
			continue
		}

		run := &Run{Source: src, done: make(chan RunResult, 1)}
		runs = append(runs, run)
		go func(src *Source, run *Run) {
			run.done <- c.runWorker(ctx, src, hostname)
			close(run.done)
		}(src, run)
	}
	c.setActive()
	return runs
}

func (c *Coordinator) setActive() {
	if c.metrics != nil && c.metrics.ActiveSources != nil {
		c.metrics.ActiveSources.Set(float64(c.ActiveCount()))
	}
}
