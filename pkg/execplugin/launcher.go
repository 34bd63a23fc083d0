package execplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"os/user"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	ErrAlreadyRunning      = errors.New("exec source already running")
	ErrUnknownIdentity     = errors.New("no such user")
	ErrPrivilegedIdentity  = errors.New("refusing to exec program as root")
	ErrPipe                = errors.New("pipe failed")
	ErrSpawn               = errors.New("spawn failed")
	ErrUnsupportedPlatform = errors.New("exec sources are not supported on this platform")
)

// Child 运行中的程序，stdout/stderr 合并为一个可读流
type Child interface {
	PID() int
	// Stream 输出管道的读端
	Stream() io.ReadCloser
	// Terminate 发送 SIGTERM，尽力而为
	Terminate() error
	// Wait 回收子进程并返回退出状态
	Wait() error
}

// Launcher 启动已占用数据源的程序
type Launcher interface {
	Launch(ctx context.Context, src *Source) (Child, error)
}

// ProcessLauncher 以数据源配置的用户身份启动真实进程
type ProcessLauncher struct {
	// LookupUser 解析用户名，默认 user.Lookup
	LookupUser func(name string) (*user.User, error)
	// Env 子进程环境变量，nil 时继承采集器的环境
	Env []string
}

// NewProcessLauncher 创建默认的进程启动器
func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{LookupUser: user.Lookup}
}

func (l *ProcessLauncher) lookup(name string) (*user.User, error) {
	lookup := l.LookupUser
	if lookup == nil {
		lookup = user.Lookup
	}
	u, err := lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: `%s': %v", ErrUnknownIdentity, name, err)
	}
	return u, nil
}

func checkLaunchable(ctx context.Context, src *Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src.PID() != 0 || src.State() != StateLaunching {
		return fmt.Errorf("%w: %s (state=%s pid=%d)", ErrAlreadyRunning, src.Name(), src.State(), src.PID())
	}
	return nil
}

type processChild struct {
	cmd    *osexec.Cmd
	stream *os.File
}

func (c *processChild) PID() int { return c.cmd.Process.Pid }

func (c *processChild) Stream() io.ReadCloser { return c.stream }

func (c *processChild) Terminate() error {
	p, err := process.NewProcess(int32(c.PID()))
	if err != nil {
		return fmt.Errorf("find process %d: %w", c.PID(), err)
	}
	return p.Terminate()
}

func (c *processChild) Wait() error {
	return c.cmd.Wait()
}
