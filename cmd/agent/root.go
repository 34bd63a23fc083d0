package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/exec-collector/cmd/server"
	"github.com/exec-collector/pkg/config"
	"github.com/exec-collector/pkg/logger"
	"github.com/exec-collector/pkg/registers"
	"github.com/exec-collector/pkg/signal"
	"github.com/exec-collector/pkg/util"
)

const projectName = "exec-collector"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   projectName,
	Short: "Runs configured programs as unprivileged users and exports the values they print to Prometheus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runServer(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "-> Config file path | 配置文件路径")
	initServerFlags(rootCmd)
	initMonitorFlags(rootCmd)
	initLogFlags(rootCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	util.PrintBanner(projectName, "cyan")

	zapLogger, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()

	logger.SetDefaultCollector("main")
	logger.Info("log initialization successful",
		zap.String("path", cfg.Log.Path),
		zap.String("level", cfg.Log.Level),
		zap.String("format", cfg.Log.Format))
	logger.Debug("configuration loaded", zap.String("config", cfgFile))

	const enableProcess = true
	registry, agent, err := registers.InitPromRegistry(ctx, enableProcess, cfg)
	if err != nil {
		return fmt.Errorf("init collectors: %w", err)
	}

	// InitLogger 的实例带有包级封装的 caller skip，直接使用时抵消掉
	httpServer := server.NewHTTPServer(&cfg.Server, zapLogger.WithOptions(zap.AddCallerSkip(-2)), registry)
	if err := httpServer.Start(); err != nil {
		_ = agent.Shutdown(context.Background())
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	// 关闭顺序：调度器 → 采集器 → HTTP服务；仍在运行的子进程不等待
	return signal.WaitForShutdown(ctx, signal.DefaultShutdownTimeout, func(ctx context.Context) error {
		return multierr.Combine(
			agent.Shutdown(ctx),
			httpServer.Shutdown(ctx),
		)
	})
}
