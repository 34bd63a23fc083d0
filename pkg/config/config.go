package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`
	Log     ZapLogConfig  `yaml:"log" mapstructure:"log"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0"`
}

// MonitorConfig 监控采集全局配置
type MonitorConfig struct {
	// Interval 调度轮询间隔
	Interval   time.Duration   `yaml:"interval" mapstructure:"interval" validate:"required,gt=0"`
	Collectors CollectorConfig `yaml:"collectors" mapstructure:"collectors"`
}

// CollectorConfig 各采集器配置
type CollectorConfig struct {
	Exec ExecConfig `yaml:"exec" mapstructure:"exec"`
}

// ExecConfig exec 采集器配置
type ExecConfig struct {
	Enable bool `yaml:"enable" mapstructure:"enable"`
	// Programs 结构化配置，非法条目只跳过不影响其他条目
	Programs []ProgramConfig `yaml:"programs" mapstructure:"programs"`
	// Exec 原始 "<user> <command>" 行，多余内容忽略
	Exec []string `yaml:"exec" mapstructure:"exec"`
	// Timeout 子进程超时后终止，0 表示不限制
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxLineBytes      int           `yaml:"max_line_bytes" mapstructure:"max_line_bytes" validate:"gte=64"`
	SerializeDispatch bool          `yaml:"serialize_dispatch" mapstructure:"serialize_dispatch"`
	// ValueTTL 超过该时间未刷新的值不再导出，0 表示永久保留
	ValueTTL time.Duration `yaml:"value_ttl" mapstructure:"value_ttl" validate:"gte=0"`
	// Hostname 覆盖 host 标签，为空时自动探测
	Hostname string `yaml:"hostname" mapstructure:"hostname"`
}

// ProgramConfig 单个 (user, command) 配置
type ProgramConfig struct {
	User    string `yaml:"user" mapstructure:"user" validate:"required"`
	Command string `yaml:"command" mapstructure:"command" validate:"required"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	Format    string `yaml:"format" mapstructure:"format" validate:"required,oneof=json console"`
	Path      string `yaml:"path" mapstructure:"path" validate:"required"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" validate:"gt=0"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" validate:"gte=0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
	Compress  bool   `yaml:"compress" mapstructure:"compress"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9103",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: 10 * time.Second,
			Collectors: CollectorConfig{
				Exec: ExecConfig{
					Enable:       true,
					Programs:     []ProgramConfig{},
					Exec:         []string{},
					Timeout:      0,
					MaxLineBytes: 64 * 1024,
				},
			},
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// LoadFile 在默认配置上加载 YAML 文件，不绑定命令行参数
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 EXEC_COLLECTOR_MONITOR_INTERVAL -> monitor.interval
	v.SetEnvPrefix("EXEC_COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
