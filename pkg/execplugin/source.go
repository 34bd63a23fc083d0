package execplugin

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// State 数据源生命周期: Idle -> Launching -> Streaming -> Idle
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ErrInvalidSource 配置条目缺少 user/command 或 user 含空白
var ErrInvalidSource = errors.New("invalid exec source")

// Source 一个 (user, command) 配置，User/Command 创建后不变
// state 和 pid 归调度器和占用该数据源的 worker 管理
type Source struct {
	User    string
	Command string

	state atomic.Int32
	pid   atomic.Int64
}

// NewSource 创建数据源，user/command 不能为空
func NewSource(user, command string) (*Source, error) {
	user = strings.TrimSpace(user)
	command = strings.TrimSpace(command)
	if user == "" || command == "" {
		return nil, fmt.Errorf("%w: user=%q command=%q", ErrInvalidSource, user, command)
	}
	if strings.ContainsAny(user, " \t\r\n") {
		return nil, fmt.Errorf("%w: user %q contains whitespace", ErrInvalidSource, user)
	}
	return &Source{User: user, Command: command}, nil
}

// ParseSourceLine 解析原始 "user command [忽略...]" 行
func ParseSourceLine(line string) (*Source, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q (expected \"<user> <command>\")", ErrInvalidSource, line)
	}
	return NewSource(fields[0], fields[1])
}

// Name 用于日志和指标标签
func (s *Source) Name() string {
	return s.User + ":" + s.Command
}

// Argv0 命令的 basename，没有时返回命令本身
func (s *Source) Argv0() string {
	idx := strings.LastIndexByte(s.Command, '/')
	if idx < 0 || idx == len(s.Command)-1 {
		return s.Command
	}
	return s.Command[idx+1:]
}

// State 当前生命周期状态
func (s *Source) State() State {
	return State(s.state.Load())
}

// Active 是否有采集周期在进行
func (s *Source) Active() bool {
	return s.State() != StateIdle
}

// PID 运行中子进程的 pid，没有时为 0
func (s *Source) PID() int {
	return int(s.pid.Load())
}

// TryAcquire Idle -> Launching，只有返回 true 的调用方可以启动 worker
func (s *Source) TryAcquire() bool {
	return s.state.CompareAndSwap(int32(StateIdle), int32(StateLaunching))
}

// markStreaming 由 launcher 在子进程启动成功后调用
func (s *Source) markStreaming(pid int) {
	s.pid.Store(int64(pid))
	s.state.Store(int32(StateStreaming))
}

// release 由持有该数据源的 worker 调用，恢复为 Idle
func (s *Source) release() {
	s.pid.Store(0)
	s.state.Store(int32(StateIdle))
}
