package agent

import (
	"github.com/spf13/cobra"
)

func initMonitorFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	execPrefix := "monitor.collectors.exec."
	exec := defaultCfg.Monitor.Collectors.Exec

	f.Duration("monitor.interval", defaultCfg.Monitor.Interval, "-> Poll interval | 采集间隔")

	f.Bool(execPrefix+"enable", exec.Enable, "-> Enable the exec collector | 启用 exec 采集器")
	f.StringSlice(execPrefix+"exec", exec.Exec, "-> Program as \"<user> <command>\", repeatable | 以指定用户运行的程序")
	f.Duration(execPrefix+"timeout", exec.Timeout, "-> Terminate programs running longer than this, 0 disables | 子进程超时")
	f.Int(execPrefix+"max_line_bytes", exec.MaxLineBytes, "-> Longest accepted output line | 单行最大字节数")
	f.Bool(execPrefix+"serialize_dispatch", exec.SerializeDispatch, "-> Dispatch values through a single writer | 串行分发")
	f.Duration(execPrefix+"value_ttl", exec.ValueTTL, "-> Drop values not refreshed within this window, 0 keeps them | 值过期时间")
	f.String(execPrefix+"hostname", exec.Hostname, "-> Host label, empty detects it | 主机名")
}
