package registers

import (
	"context"
	"errors"
	"os/user"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-collector/pkg/config"
	"github.com/exec-collector/pkg/execplugin"
)

type countingCollector struct {
	name     string
	initErr  error
	closeErr error
	collects atomic.Int32
	closed   atomic.Bool
}

func (c *countingCollector) Name() string { return c.name }
func (c *countingCollector) Init() error  { return c.initErr }

func (c *countingCollector) Collect(ctx context.Context) error {
	c.collects.Add(1)
	return nil
}

func (c *countingCollector) Close() error {
	c.closed.Store(true)
	return c.closeErr
}

func TestAgentCollectsOnTick(t *testing.T) {
	agent := NewRegistry(10 * time.Millisecond)
	c := &countingCollector{name: "fake"}
	agent.Register(c)

	require.NoError(t, agent.Start(context.Background()))
	require.Eventually(t, func() bool { return c.collects.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, agent.Shutdown(ctx))
	assert.True(t, c.closed.Load())

	n := c.collects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, c.collects.Load())
}

func TestAgentInitFailure(t *testing.T) {
	agent := NewRegistry(time.Second)
	agent.Register(&countingCollector{name: "broken", initErr: errors.New("no access")})

	err := agent.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestAgentCloseAllAggregates(t *testing.T) {
	agent := NewRegistry(time.Second)
	a := &countingCollector{name: "a", closeErr: errors.New("a failed")}
	b := &countingCollector{name: "b"}
	c := &countingCollector{name: "c", closeErr: errors.New("c failed")}
	agent.Register(a)
	agent.Register(b)
	agent.Register(c)

	err := agent.CloseAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "c failed")
	assert.True(t, b.closed.Load())
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	cfg.Monitor.Interval = time.Second
	cfg.Monitor.Collectors.Exec.Hostname = "web01"
	cfg.Monitor.Collectors.Exec.Programs = []config.ProgramConfig{{User: "ghost", Command: "/bin/true"}}
	return cfg
}

func TestInitPromRegistryExposesExecMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.Collectors.Exec.SerializeDispatch = true
	launcher := &execplugin.ProcessLauncher{LookupUser: func(name string) (*user.User, error) {
		return nil, user.UnknownUserError(name)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, agent, err := InitPromRegistry(ctx, false, cfg, execplugin.WithLauncher(launcher))
	require.NoError(t, err)

	hasFamily := func(name string) bool {
		families, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range families {
			if mf.GetName() == name {
				return true
			}
		}
		return false
	}
	require.Eventually(t, func() bool { return hasFamily("exec_launch_failures_total") }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, hasFamily("agent_collect_duration_seconds"))

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, agent.Shutdown(shutdownCtx))
}

func TestRegisterCollectorsNoneEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.Collectors.Exec.Enable = false
	_, _, err := InitPromRegistry(context.Background(), false, cfg)
	assert.ErrorContains(t, err, "no collectors enabled")
}
