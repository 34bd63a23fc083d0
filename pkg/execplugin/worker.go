package execplugin

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/exec-collector/pkg/logger"
)

var (
	// ErrStreamUnavailable 子进程已启动但没有可读的输出
	ErrStreamUnavailable = errors.New("child output stream unavailable")
	// ErrStream 读错误导致本周期提前结束
	ErrStream = errors.New("read child output failed")
)

// runWorker 执行已占用数据源的一个采集周期，返回前数据源总是回到 Idle
func (c *Coordinator) runWorker(ctx context.Context, src *Source, hostname string) RunResult {
	res := RunResult{Source: src, Started: c.now()}
	finish := func() RunResult {
		res.Finished = c.now()
		c.observeRun(src, res)
		c.setActive()
		return res
	}

	child, err := c.launcher.Launch(ctx, src)
	if err != nil {
		// 仍处于 Launching 且没有 pid 说明归本 worker 所有，必须释放
		if src.State() == StateLaunching && src.PID() == 0 {
			src.release()
		}
		res.Err = err
		c.launchFailed(src, err)
		return finish()
	}
	res.PID = child.PID()
	c.launched(src)
	logger.Debug("exec program started",
		zap.String("source", src.Name()),
		zap.Int("pid", res.PID))

	stream := child.Stream()
	if stream == nil {
		res.Err = ErrStreamUnavailable
		logger.Error("exec plugin: cannot read child output",
			zap.String("source", src.Name()),
			zap.Int("pid", res.PID))
		if err := child.Terminate(); err != nil {
			logger.Warn("exec plugin: terminate child failed",
				zap.String("source", src.Name()),
				zap.Int("pid", res.PID),
				zap.Error(err))
		}
		src.release()
		go reap(src.Name(), child)
		return finish()
	}

	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, func() {
			logger.Warn("exec plugin: program exceeded timeout, terminating",
				zap.String("source", src.Name()),
				zap.Int("pid", res.PID),
				zap.Duration("timeout", c.timeout))
			if err := child.Terminate(); err != nil {
				logger.Warn("exec plugin: terminate child failed",
					zap.String("source", src.Name()),
					zap.Int("pid", res.PID),
					zap.Error(err))
			}
		})
	}

	dec := Decoder{
		MaxLineBytes: c.maxLineBytes,
		OnSkip: func(line string, reason SkipReason, err error) {
			res.Skipped++
			c.lineSkipped(reason)
			switch reason {
			case SkipInvalidKind:
				logger.Warn("exec plugin: "+err.Error(), zap.String("source", src.Name()))
			case SkipTooLong:
				logger.Warn("exec plugin: line exceeds max_line_bytes, skipped",
					zap.String("source", src.Name()),
					zap.Int("max_line_bytes", c.maxLineBytes),
					zap.String("prefix", line))
			}
		},
	}
	readErr := dec.Decode(stream, func(obs Observation) {
		obs.Time = c.now()
		vl := ValueList{
			Observation:    obs,
			Host:           hostname,
			Plugin:         PluginName,
			PluginInstance: "",
		}
		if err := c.sink.Dispatch(vl); err != nil {
			logger.Warn("exec plugin: dispatch failed",
				zap.String("source", src.Name()),
				zap.String("type_instance", obs.Label),
				zap.Error(err))
			return
		}
		res.Observations++
		c.observed(obs.Kind)
	})
	if timer != nil {
		timer.Stop()
	}
	if readErr != nil {
		res.Err = fmt.Errorf("%w: %v", ErrStream, readErr)
		logger.Warn("exec plugin: reading child output failed",
			zap.String("source", src.Name()),
			zap.Int("pid", res.PID),
			zap.Error(readErr))
	}

	if err := stream.Close(); err != nil {
		logger.Debug("exec plugin: close stream", zap.String("source", src.Name()), zap.Error(err))
	}
	src.release()
	// 子进程可能在关闭输出后继续运行，后台回收，不占用数据源
	go reap(src.Name(), child)

	logger.Debug("exec program finished",
		zap.String("source", src.Name()),
		zap.Int("pid", res.PID),
		zap.Int("observations", res.Observations),
		zap.Int("skipped", res.Skipped))
	return finish()
}

func reap(name string, child Child) {
	err := child.Wait()
	if err == nil {
		return
	}
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		logger.Warn("exec plugin: program exited with non-zero status",
			zap.String("source", name),
			zap.Int("pid", child.PID()),
			zap.Int("exit_code", exitErr.ExitCode()))
		return
	}
	logger.Debug("exec plugin: wait child", zap.String("source", name), zap.Error(err))
}

func launchFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, ErrPrivilegedIdentity):
		return "privileged_identity"
	case errors.Is(err, ErrPipe):
		return "pipe"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func (c *Coordinator) launchFailed(src *Source, err error) {
	reason := launchFailureReason(err)
	if reason == "already_running" {
		logger.Debug("exec plugin: launch skipped", zap.String("source", src.Name()), zap.Error(err))
	} else {
		logger.Error("exec plugin: launch failed",
			zap.String("source", src.Name()),
			zap.String("reason", reason),
			zap.Error(err))
	}
	if c.metrics != nil && c.metrics.LaunchFailures != nil {
		c.metrics.LaunchFailures.WithLabelValues(src.Name(), reason).Inc()
	}
}

func (c *Coordinator) launched(src *Source) {
	if c.metrics != nil && c.metrics.Launches != nil {
		c.metrics.Launches.WithLabelValues(src.Name()).Inc()
	}
	c.setActive()
}

func (c *Coordinator) observed(kind Kind) {
	if c.metrics != nil && c.metrics.Observations != nil {
		c.metrics.Observations.WithLabelValues(kind.String()).Inc()
	}
}

func (c *Coordinator) lineSkipped(reason SkipReason) {
	if c.metrics != nil && c.metrics.LinesSkipped != nil {
		c.metrics.LinesSkipped.WithLabelValues(string(reason)).Inc()
	}
}

func (c *Coordinator) observeRun(src *Source, res RunResult) {
	if c.metrics != nil && c.metrics.RunDuration != nil && res.PID != 0 {
		c.metrics.RunDuration.WithLabelValues(src.Name()).Observe(res.Finished.Sub(res.Started).Seconds())
	}
}
