package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 	校验Addr格式(必须是 ":port" 或 "ip:port")
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

func (m *MonitorConfig) Validate() error {
	if err := valid.Struct(m); err != nil {
		return err
	}
	if m.Interval < time.Second || m.Interval > 3600*time.Second {
		return fmt.Errorf("monitor.interval must be between 1 and 3600 seconds, got %s", m.Interval)
	}
	return m.Collectors.validate()
}

// 校验至少启用一个采集器，否则没有意义
func (col *CollectorConfig) validate() error {
	if !col.Exec.Enable {
		return fmt.Errorf("at least one collector must be enabled (exec)")
	}
	return col.Exec.Validate()
}

// Validate exec 采集器校验
// 启用时至少要有一个合法条目，非法条目在创建采集器时记录并跳过
// 重复的 (user, command) 允许，各自作为独立数据源
func (e *ExecConfig) Validate() error {
	if err := valid.Struct(e); err != nil {
		return err
	}
	if !e.Enable {
		return nil
	}
	total := len(e.Programs) + len(e.Exec)
	if total == 0 {
		return errors.New("collectors.exec: no programs configured")
	}
	if errs := e.EntryErrors(); len(errs) == total {
		return fmt.Errorf("collectors.exec: no valid programs: %w", multierr.Combine(errs...))
	}
	return nil
}

// EntryErrors 逐条检查 programs 和 exec，返回每个非法条目的错误
// user/command 不能为空，user 不能包含空白
// 原始 exec 行至少包含 "<user> <command>" 两段
func (e *ExecConfig) EntryErrors() []error {
	var errs []error
	for i, p := range e.Programs {
		if err := valid.Struct(p); err != nil {
			errs = append(errs, fmt.Errorf("programs[%d]: %w", i, err))
			continue
		}
		if err := checkProgram(p.User, p.Command); err != nil {
			errs = append(errs, fmt.Errorf("programs[%d]: %w", i, err))
		}
	}
	for i, line := range e.Exec {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			errs = append(errs, fmt.Errorf("exec[%d]: %q must be \"<user> <command>\"", i, line))
			continue
		}
		if err := checkProgram(fields[0], fields[1]); err != nil {
			errs = append(errs, fmt.Errorf("exec[%d]: %w", i, err))
		}
	}
	return errs
}

func checkProgram(user, command string) error {
	if strings.TrimSpace(user) == "" || strings.TrimSpace(command) == "" {
		return errors.New("user and command are required")
	}
	if strings.ContainsAny(strings.TrimSpace(user), " \t\r\n") {
		return fmt.Errorf("user %q contains whitespace", user)
	}
	return nil
}
