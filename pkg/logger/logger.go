package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/exec-collector/pkg/config"
	"github.com/exec-collector/pkg/goid"
)

type Logger = zap.Logger

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	mu               sync.RWMutex
	baseLogger       = zap.NewNop()
	defaultCollector = "exec-collector"
	initialized      bool
)

// InitLogger 初始化全局日志：控制台彩色输出 + JSON 文件（按天切割）
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log config is nil")
	}
	level := parseLevel(cfg.Level)

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Path, err)
	}

	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	maxSize := int64(cfg.MaxSize) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	writer, err := rotatelogs.New(
		filepath.Join(cfg.Path, "exec-collector-%Y%m%d.log"),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationSize(maxSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create rotate writer: %w", err)
	}

	var fileEncoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "console") {
		plainCfg := zap.NewDevelopmentEncoderConfig()
		plainCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		fileEncoder = zapcore.NewConsoleEncoder(plainCfg)
	} else {
		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.TimeKey = "timestamp"
		jsonCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		fileEncoder = zapcore.NewJSONEncoder(jsonCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(newConsoleEncoder(), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	baseLogger = l
	initialized = true
	mu.Unlock()
	return l, nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func newConsoleEncoder() zapcore.Encoder {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\033[34m" + t.Format(timeLayout) + "\033[0m")
	}
	encCfg.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var levelStr string
		switch level {
		case zapcore.DebugLevel:
			levelStr = "\033[36mDEBUG\033[0m"
		case zapcore.InfoLevel:
			levelStr = "\033[32mINFO \033[0m"
		case zapcore.WarnLevel:
			levelStr = "\033[33mWARN \033[0m"
		case zapcore.ErrorLevel:
			levelStr = "\033[31mERROR\033[0m"
		case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
		default:
			levelStr = "UNK  "
		}
		enc.AppendString(levelStr)
	}
	// Caller 两级路径
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(rel + ":" + strconv.Itoa(c.Line))
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// ReplaceLogger 替换基础 logger，返回恢复函数，测试配合 zaptest/observer 使用
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prev, prevInit := baseLogger, initialized
	baseLogger, initialized = l, true
	mu.Unlock()
	return func() {
		mu.Lock()
		baseLogger, initialized = prev, prevInit
		mu.Unlock()
	}
}

func SetDefaultCollector(collector string) {
	mu.Lock()
	defer mu.Unlock()
	defaultCollector = collector
}

func GetDefaultCollector() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultCollector
}

func log(level zapcore.Level, msg string, fields ...zap.Field) {
	mu.RLock()
	l, collector := baseLogger, defaultCollector
	mu.RUnlock()

	if ce := l.Check(level, msg); ce != nil {
		all := make([]zap.Field, 0, len(fields)+2)
		all = append(all, zap.String("collector", collector), zap.Uint64("goid", goid.GetGID()))
		all = append(all, fields...)
		ce.Write(all...)
	}
}

func Debug(msg string, fields ...zap.Field) { log(zapcore.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log(zapcore.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log(zapcore.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zap.Field) { log(zapcore.ErrorLevel, msg, fields...) }
func Panic(msg string, fields ...zap.Field) { log(zapcore.PanicLevel, msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log(zapcore.FatalLevel, msg, fields...) }

// Sync 刷盘，未初始化时直接返回
func Sync() error {
	mu.RLock()
	l, ok := baseLogger, initialized
	mu.RUnlock()
	if !ok {
		return nil
	}
	return l.Sync()
}

// GetGlobalLogger 返回当前基础 logger（InitLogger 之前为 no-op）
func GetGlobalLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}
