package registers

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/exec-collector/pkg/collector"
	"github.com/exec-collector/pkg/config"
	"github.com/exec-collector/pkg/execplugin"
	"github.com/exec-collector/pkg/logger"
	"github.com/exec-collector/pkg/metrics"
	"github.com/exec-collector/pkg/sink"
)

// dispatchQueueSize 串行分发队列缓冲
const dispatchQueueSize = 1024

type Module struct {
	Enabled bool
	Name    string
	NewFunc func() (Collector, error)
}

// InitPromRegistry 返回值
// promReg  *prometheus.Registry  供 /metrics 暴露，包含 exec 值和自身指标
// agent    Agent                 已启动的调度器
func InitPromRegistry(ctx context.Context, enableProcess bool, cfg *config.Config, opts ...execplugin.Option) (*prometheus.Registry, Agent, error) {
	promReg := prometheus.NewRegistry()
	// 仅注册进程指标（可选），不注册Go指标
	if enableProcess {
		promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	metricFactory := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg))

	agent := NewRegistry(cfg.Monitor.Interval)
	if _, err := RegisterCollectors(agent, cfg, metricFactory, opts...); err != nil {
		logger.Error("failed to register collectors", zap.Error(err))
		return nil, nil, err
	}
	if err := agent.Start(ctx); err != nil {
		_ = agent.CloseAll()
		return nil, nil, err
	}
	logger.Info("collector scheduler running", zap.Duration("interval", cfg.Monitor.Interval))
	return promReg, agent, nil
}

// newValueSink 构造 exec 值的落地：Dispatcher 注册到 Prometheus，按需包一层串行队列
func newValueSink(cfg *config.ExecConfig, metricFactory *metrics.MetricFactory) (execplugin.Sink, error) {
	dispatcher := sink.NewDispatcher(sink.WithTTL(cfg.ValueTTL))
	if err := metricFactory.Registerer().Register(dispatcher); err != nil {
		return nil, fmt.Errorf("register value dispatcher: %w", err)
	}
	if cfg.SerializeDispatch {
		return sink.NewQueue(dispatcher, dispatchQueueSize), nil
	}
	return dispatcher, nil
}

// RegisterCollectors 采集器注册统一入口，新增采集器只需在 modules 中追加一条
func RegisterCollectors(agent Agent, cfg *config.Config, metricFactory *metrics.MetricFactory, opts ...execplugin.Option) ([]Collector, error) {
	execCfg := &cfg.Monitor.Collectors.Exec
	modules := []Module{
		{
			Enabled: execCfg.Enable,
			Name:    execplugin.PluginName,
			NewFunc: func() (Collector, error) {
				valueSink, err := newValueSink(execCfg, metricFactory)
				if err != nil {
					return nil, err
				}
				return collector.NewExecCollector(execCfg, valueSink, metricFactory, opts...)
			},
		},
	}

	var registered []Collector
	for _, m := range modules {
		if !m.Enabled {
			logger.Debug("collector disabled", zap.String("name", m.Name))
			continue
		}
		c, err := m.NewFunc()
		if err != nil {
			return nil, fmt.Errorf("create collector %s: %w", m.Name, err)
		}
		agent.Register(c)
		registered = append(registered, c)
		logger.Debug("registered collector", zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("no collectors enabled; check monitor.collectors")
	}
	return registered, nil
}
