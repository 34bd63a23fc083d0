package metrics

// MetricFactory 指标工厂，用于统一创建并注册指标（counter/gauge/histogram）
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// Registerer 返回底层注册表，供自行注册的 collector 使用（如 value dispatcher）
func (m *MetricFactory) Registerer() Registers {
	return m.reg
}
