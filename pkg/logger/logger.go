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

	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/goid"
)

type Logger = zap.Logger

var (
	baseLogger     = zap.NewNop()
	loggerInitOnce sync.Once
	mu             sync.RWMutex
)

// ParseLevel 字符串转 zap 级别，未知值按 info 处理
func ParseLevel(s string) zapcore.Level {
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

// Init 初始化全局日志：控制台彩色输出 + 按天滚动的文件输出
func Init(cfg config.ZapLogConfig) (*zap.Logger, error) {
	var err error
	loggerInitOnce.Do(func() {
		var l *zap.Logger
		l, err = New(cfg)
		if err != nil {
			return
		}
		mu.Lock()
		baseLogger = l
		mu.Unlock()
		zap.ReplaceGlobals(l)
	})
	if err != nil {
		return nil, err
	}
	return L(), nil
}

// New 按配置构建一个独立的 logger（不修改全局实例）
func New(cfg config.ZapLogConfig) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

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
	rotateOpts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithRotationSize(maxSize),
	}
	// rotatelogs 不允许同时设置 MaxAge 和 RotationCount
	if cfg.MaxBackup > 0 {
		rotateOpts = append(rotateOpts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	} else {
		rotateOpts = append(rotateOpts, rotatelogs.WithMaxAge(maxAge))
	}
	writer, err := rotatelogs.New(filepath.Join(cfg.Path, "collector-%Y%m%d.log"), rotateOpts...)
	if err != nil {
		return nil, fmt.Errorf("open rotate log writer: %w", err)
	}

	// 控制台彩色时间
	consoleTimeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}
	fileTimeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}

	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.ConsoleSeparator = " "
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoderCfg.EncodeTime = consoleTimeEncoder
	// Caller 两级路径
	consoleEncoderCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}

	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.TimeKey = "timestamp"
	fileEncoderCfg.EncodeTime = fileTimeEncoder
	fileEncoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var fileEncoder zapcore.Encoder
	if cfg.Format == "console" {
		fileEncoder = zapcore.NewConsoleEncoder(fileEncoderCfg)
	} else {
		fileEncoder = zapcore.NewJSONEncoder(fileEncoderCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// L 返回全局 logger；未初始化时返回 Nop
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// Named 为组件派生带名字的子 logger
func Named(name string) *zap.Logger {
	return L().Named(name)
}

func gid() zap.Field {
	return zap.String("goid", strconv.FormatUint(goid.GetGID(), 10))
}

func log(level zapcore.Level, msg string, fields ...zap.Field) {
	l := L().WithOptions(zap.AddCallerSkip(2))
	fields = append(fields, gid())
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func Debug(msg string, fields ...zap.Field) { log(zapcore.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log(zapcore.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log(zapcore.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zap.Field) { log(zapcore.ErrorLevel, msg, fields...) }

// Sync 刷盘；忽略 stdout 不支持 sync 的错误
func Sync() error {
	err := L().Sync()
	if err != nil && strings.Contains(err.Error(), "/dev/stdout") {
		return nil
	}
	return err
}
