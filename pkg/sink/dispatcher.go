// Package sink 保存 exec 程序上报的值并以 Prometheus 指标暴露
package sink

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exec-collector/pkg/execplugin"
)

var valueLabels = []string{"host", "plugin", "plugin_instance", "type_instance"}

type valueKey struct {
	kind           execplugin.Kind
	host           string
	plugin         string
	pluginInstance string
	typeInstance   string
}

type valueEntry struct {
	value float64
	time  time.Time
}

// Dispatcher 按 (kind, host, plugin, plugin_instance, type_instance) 保存最新值，
// 实现 prometheus.Collector，Dispatch 并发安全
type Dispatcher struct {
	mu     sync.RWMutex
	values map[valueKey]valueEntry
	ttl    time.Duration
	now    func() time.Time

	counterDesc *prometheus.Desc
	gaugeDesc   *prometheus.Desc
}

// DispatcherOption 配置 Dispatcher
type DispatcherOption func(*Dispatcher)

// WithTTL 抓取时丢弃 ttl 内未刷新的值，0 表示永久保留
func WithTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.ttl = ttl }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher 创建值分发器
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		values: make(map[valueKey]valueEntry),
		now:    time.Now,
		counterDesc: prometheus.NewDesc(
			"exec_counter",
			"Counter value reported by an exec program",
			valueLabels, nil,
		),
		gaugeDesc: prometheus.NewDesc(
			"exec_gauge",
			"Gauge value reported by an exec program",
			valueLabels, nil,
		),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 实现 execplugin.Sink
func (d *Dispatcher) Dispatch(vl execplugin.ValueList) error {
	// 非法 UTF-8 的标签值会让整个 /metrics 抓取失败
	key := valueKey{
		kind:           vl.Kind,
		host:           validLabel(vl.Host),
		plugin:         validLabel(vl.Plugin),
		pluginInstance: validLabel(vl.PluginInstance),
		typeInstance:   validLabel(vl.Label),
	}
	ts := vl.Time
	if ts.IsZero() {
		ts = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// 乱序到达的旧值不覆盖新值
	if prev, ok := d.values[key]; ok && prev.time.After(ts) {
		return nil
	}
	d.values[key] = valueEntry{value: vl.Value(), time: ts}
	return nil
}

func validLabel(v string) string {
	return strings.ToValidUTF8(v, "\uFFFD")
}

// Len 当前缓存的值个数
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.values)
}

// Describe 实现 prometheus.Collector
func (d *Dispatcher) Describe(ch chan<- *prometheus.Desc) {
	ch <- d.counterDesc
	ch <- d.gaugeDesc
}

// Collect 实现 prometheus.Collector
func (d *Dispatcher) Collect(ch chan<- prometheus.Metric) {
	d.expire()

	d.mu.RLock()
	defer d.mu.RUnlock()
	for key, entry := range d.values {
		desc, valueType := d.gaugeDesc, prometheus.GaugeValue
		if key.kind == execplugin.KindCounter {
			desc, valueType = d.counterDesc, prometheus.CounterValue
		}
		m, err := prometheus.NewConstMetric(desc, valueType, entry.value,
			key.host, key.plugin, key.pluginInstance, key.typeInstance)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(entry.time, m)
	}
}

func (d *Dispatcher) expire() {
	if d.ttl <= 0 {
		return
	}
	cutoff := d.now().Add(-d.ttl)

	d.mu.Lock()
	defer d.mu.Unlock()
	for key, entry := range d.values {
		if entry.time.Before(cutoff) {
			delete(d.values, key)
		}
	}
}
