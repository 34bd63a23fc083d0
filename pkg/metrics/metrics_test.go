package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecCollectorMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewMetricFactory(NewPromRegistry(reg))

	m := f.NewExecCollectorMetrics()
	agent := f.NewAgentMetrics()

	m.Launches.WithLabelValues("nobody:/bin/check").Inc()
	m.Observations.WithLabelValues("gauge").Add(3)
	m.ActiveSources.Set(2)
	m.ConfigErrors.Inc()
	agent.CollectErrors.WithLabelValues("exec").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Launches.WithLabelValues("nobody:/bin/check")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Observations.WithLabelValues("gauge")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSources))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["exec_launches_total"])
	assert.True(t, names["exec_active_sources"])
	assert.True(t, names["exec_config_errors_total"])
	assert.True(t, names["agent_collect_errors_total"])
}

func TestMustRegisterDuplicatePanics(t *testing.T) {
	f := NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
	f.NewExecActiveSources()
	assert.Panics(t, func() { f.NewExecActiveSources() })
}
