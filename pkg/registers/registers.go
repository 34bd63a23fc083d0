package registers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/exec-collector/pkg/logger"
)

// AgentImpl 实现 registers.Agent 接口
type AgentImpl struct {
	collectors []Collector
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// NewRegistry 创建采集调度器
func NewRegistry(interval time.Duration) *AgentImpl {
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentImpl{
		collectors: make([]Collector, 0),
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register 注册采集器
func (r *AgentImpl) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// Collectors 返回已注册采集器的副本
func (r *AgentImpl) Collectors() []Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Collector(nil), r.collectors...)
}

// InitAll 依次初始化，遇到第一个错误即返回
func (r *AgentImpl) InitAll() error {
	for _, coll := range r.Collectors() {
		if err := coll.Init(); err != nil {
			return fmt.Errorf("collector %s init failed: %w", coll.Name(), err)
		}
		logger.Debug("collector initialized successfully", zap.String("name", coll.Name()))
	}
	return nil
}

// Start 初始化所有采集器后立即采集一次，然后按 interval 循环
func (r *AgentImpl) Start(ctx context.Context) error {
	if err := r.InitAll(); err != nil {
		return err
	}
	ticker := time.NewTicker(r.interval)
	logger.Debug("collector scheduler started",
		zap.Duration("interval", r.interval),
		zap.Int("registered_collectors", len(r.Collectors())))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()

		if err := r.CollectAll(ctx); err != nil {
			logger.Warn("first collection failed", zap.Error(err))
		}
		for {
			select {
			case <-ticker.C:
				_ = r.CollectAll(ctx) // 单个采集器失败不影响整体
			case <-ctx.Done():
				logger.Info("collector scheduler stopped by external context", zap.Error(ctx.Err()))
				return
			case <-r.ctx.Done():
				logger.Info("collector scheduler stopped by shutdown")
				return
			}
		}
	}()
	return nil
}

// Shutdown 停止调度循环并关闭所有采集器
func (r *AgentImpl) Shutdown(ctx context.Context) error {
	logger.Info("shutting down collector scheduler")
	r.cancel()

	stopped := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		return fmt.Errorf("wait scheduler loop: %w", ctx.Err())
	}
	return r.CloseAll()
}

// CollectAll 调用每个采集器的 Collect，汇总错误
func (r *AgentImpl) CollectAll(ctx context.Context) error {
	var errs error
	for _, c := range r.Collectors() {
		if err := c.Collect(ctx); err != nil {
			logger.Warn("collection failed", zap.String("name", c.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errs
}

// CloseAll 关闭全部采集器，单个失败不阻断其余
func (r *AgentImpl) CloseAll() error {
	var errs error
	for _, c := range r.Collectors() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close collector", zap.String("name", c.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Debug("collector closed successfully", zap.String("name", c.Name()))
	}
	return errs
}
