package sink

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-collector/pkg/execplugin"
)

func valueList(kind execplugin.Kind, label string, v float64, ts time.Time) execplugin.ValueList {
	obs := execplugin.Observation{Kind: kind, Label: label, Time: ts}
	if kind == execplugin.KindCounter {
		obs.Counter = uint64(v)
	} else {
		obs.Gauge = v
	}
	return execplugin.ValueList{
		Observation: obs,
		Host:        "web01",
		Plugin:      execplugin.PluginName,
	}
}

func gather(t *testing.T, d *Dispatcher) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(d))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var ti string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "type_instance" {
					ti = lp.GetValue()
				}
			}
			key := mf.GetName() + "/" + ti
			if m.GetCounter() != nil {
				out[key] = m.GetCounter().GetValue()
			} else {
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestDispatcherExportsLatestValues(t *testing.T) {
	d := NewDispatcher()
	now := time.Now()

	require.NoError(t, d.Dispatch(valueList(execplugin.KindCounter, "hits", 10, now)))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindCounter, "hits", 15, now.Add(time.Second))))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindGauge, "temp", 3.5, now)))
	// 旧值不覆盖新值
	require.NoError(t, d.Dispatch(valueList(execplugin.KindCounter, "hits", 1, now.Add(-time.Minute))))

	assert.Equal(t, 2, d.Len())
	got := gather(t, d)
	assert.Equal(t, 15.0, got["exec_counter/hits"])
	assert.Equal(t, 3.5, got["exec_gauge/temp"])
	assert.Equal(t, 2, testutil.CollectAndCount(d))
}

func TestDispatcherSameLabelDifferentKinds(t *testing.T) {
	d := NewDispatcher()
	now := time.Now()
	require.NoError(t, d.Dispatch(valueList(execplugin.KindCounter, "x", 1, now)))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindGauge, "x", 2, now)))

	got := gather(t, d)
	assert.Equal(t, 1.0, got["exec_counter/x"])
	assert.Equal(t, 2.0, got["exec_gauge/x"])
}

func TestDispatcherTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	require.NoError(t, d.Dispatch(valueList(execplugin.KindGauge, "old", 1, now.Add(-2*time.Minute))))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindGauge, "fresh", 2, now.Add(-10*time.Second))))

	got := gather(t, d)
	assert.NotContains(t, got, "exec_gauge/old")
	assert.Equal(t, 2.0, got["exec_gauge/fresh"])
	assert.Equal(t, 1, d.Len())
}

func TestDispatcherInvalidUTF8Labels(t *testing.T) {
	d := NewDispatcher()
	now := time.Now()
	bad := valueList(execplugin.KindGauge, "caf\xe9", 1, now)
	bad.Host = "web\xff01"
	require.NoError(t, d.Dispatch(bad))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindCounter, "\xff\xfe", 2, now)))
	require.NoError(t, d.Dispatch(valueList(execplugin.KindGauge, "good", 3, now)))

	got := gather(t, d)
	assert.Equal(t, 3.0, got["exec_gauge/good"])
	assert.Equal(t, 1.0, got["exec_gauge/caf\uFFFD"])
	for key := range got {
		assert.True(t, utf8.ValidString(key), "key %q", key)
	}

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(d))
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDispatcherConcurrent(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = d.Dispatch(valueList(execplugin.KindGauge, "shared", float64(j), time.Now()))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, d.Len())
}

// recordingSink 非并发安全，只能通过 Queue 使用
type recordingSink struct {
	got []execplugin.ValueList
}

func (r *recordingSink) Dispatch(vl execplugin.ValueList) error {
	r.got = append(r.got, vl)
	return nil
}

func TestQueueSerializesAndDrains(t *testing.T) {
	rec := &recordingSink{}
	q := NewQueue(rec, 4)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, q.Dispatch(valueList(execplugin.KindCounter, "c", float64(j), time.Now())))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, q.Close())

	assert.Len(t, rec.got, 100)
	assert.ErrorIs(t, q.Dispatch(valueList(execplugin.KindCounter, "c", 1, time.Now())), ErrQueueClosed)
	// 重复关闭安全
	assert.NoError(t, q.Close())
}
