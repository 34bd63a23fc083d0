package registers

import "context"

// Agent 顶层调度接口，按固定间隔驱动所有已注册采集器
type Agent interface {
	Register(collector Collector)
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Collector 采集器核心接口
type Collector interface {
	Name() string
	Init() error
	// Collect 不能阻塞在超过一个周期的工作上
	Collect(ctx context.Context) error
	Close() error
}
