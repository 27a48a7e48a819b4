package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 日志级别
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat 日志格式
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config 日志配置
type Config struct {
	Level      LogLevel  `yaml:"level" json:"level"`
	Format     LogFormat `yaml:"format" json:"format"`
	Output     string    `yaml:"output" json:"output"`           // stdout, stderr, file
	Filename   string    `yaml:"filename" json:"filename"`       // 日志文件路径
	MaxSize    int       `yaml:"max_size" json:"max_size"`       // 单个日志文件最大大小(MB)
	MaxAge     int       `yaml:"max_age" json:"max_age"`         // 日志文件保留天数
	MaxBackups int       `yaml:"max_backups" json:"max_backups"` // 最大备份文件数
	Compress   bool      `yaml:"compress" json:"compress"`       // 是否压缩备份文件
	Caller     bool      `yaml:"caller" json:"caller"`           // 是否显示调用者信息
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	Level:      LevelInfo,
	Format:     FormatJSON,
	Output:     "stdout",
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 10,
	Compress:   true,
}

// Logger 日志器接口，字段以 key, value 交替传入
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

type ctxKey string

const runIDKey ctxKey = "run_id"

// ContextWithRunID 在上下文中记录同步任务的运行ID
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext 读取运行ID，不存在时返回空串
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// StructuredLogger 结构化日志器
type StructuredLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	config Config
	mu     *sync.RWMutex
}

// NewLogger 创建新的日志器
func NewLogger(config Config) Logger {
	return NewWithWriter(config, outputFor(&config))
}

// NewWithWriter 使用指定输出创建日志器，测试中用于捕获日志
func NewWithWriter(config Config, output io.Writer) Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
		config.Level = LevelInfo
	}
	logger.SetLevel(level)

	prettyfier := func(f *runtime.Frame) (string, string) {
		return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	if config.Format == FormatText {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyfier,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyfier,
		})
	}

	logger.SetOutput(output)
	logger.SetReportCaller(config.Caller)

	return &StructuredLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		config: config,
		mu:     &sync.RWMutex{},
	}
}

func outputFor(config *Config) io.Writer {
	switch config.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if config.Filename == "" {
			config.Filename = "logs/marketcache.log"
		}
		// 确保日志目录存在
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   config.Filename,
			MaxSize:    config.MaxSize,
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		}
	default:
		return os.Stdout
	}
}

// Debug 记录debug级别日志
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields...)
}

// Info 记录info级别日志
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields...)
}

// Warn 记录warn级别日志
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields...)
}

// Error 记录error级别日志
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.logWithFields(logrus.ErrorLevel, msg, fields...)
}

// WithField 添加单个字段
func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return l.derive(l.entry.WithField(key, value))
}

// WithFields 添加多个字段
func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(l.entry.WithFields(fields))
}

// WithContext 添加上下文，并提取运行ID
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	entry := l.entry.WithContext(ctx)
	if runID := RunIDFromContext(ctx); runID != "" {
		entry = entry.WithField(string(runIDKey), runID)
	}
	return l.derive(entry)
}

func (l *StructuredLogger) derive(entry *logrus.Entry) Logger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  entry,
		config: l.config,
		mu:     l.mu,
	}
}

// SetLevel 设置日志级别
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		return
	}

	l.logger.SetLevel(logrusLevel)
	l.config.Level = level
}

// GetLevel 获取日志级别
func (l *StructuredLogger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.config.Level
}

// logWithFields 记录带字段的日志
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields ...interface{}) {
	entry := l.entry

	if len(fields) > 0 {
		fieldMap := make(map[string]interface{})
		for i := 0; i+1 < len(fields); i += 2 {
			if key, ok := fields[i].(string); ok {
				fieldMap[key] = fields[i+1]
			}
		}
		if len(fieldMap) > 0 {
			entry = entry.WithFields(fieldMap)
		}
	}

	entry.Log(level, msg)
}

// Nop 返回丢弃所有输出的日志器
func Nop() Logger {
	return NewWithWriter(Config{Level: LevelError, Format: FormatJSON}, io.Discard)
}

// 全局日志器实例
var (
	globalMu     sync.RWMutex
	globalLogger = NewLogger(DefaultConfig)
)

// Init 初始化全局日志器
func Init(config Config) {
	SetGlobalLogger(NewLogger(config))
}

// SetGlobalLogger 设置全局日志器
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger 获取全局日志器
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// 全局日志函数

func Debug(msg string, fields ...interface{}) { GetGlobalLogger().Debug(msg, fields...) }

func Info(msg string, fields ...interface{}) { GetGlobalLogger().Info(msg, fields...) }

func Warn(msg string, fields ...interface{}) { GetGlobalLogger().Warn(msg, fields...) }

func Error(msg string, fields ...interface{}) { GetGlobalLogger().Error(msg, fields...) }

// WithField 添加单个字段
func WithField(key string, value interface{}) Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields 添加多个字段
func WithFields(fields map[string]interface{}) Logger {
	return GetGlobalLogger().WithFields(fields)
}

// FetchLogger 记录行情源调用耗时
type FetchLogger struct {
	logger Logger
}

// NewFetchLogger 创建行情源调用日志记录器
func NewFetchLogger(logger Logger) *FetchLogger {
	return &FetchLogger{logger: logger}
}

// LogFetch 按耗时和结果选择日志级别
func (fl *FetchLogger) LogFetch(provider, op string, duration time.Duration, err error) {
	logFields := map[string]interface{}{
		"provider":    provider,
		"op":          op,
		"duration_ms": duration.Milliseconds(),
	}

	msg := fmt.Sprintf("%s %s took %s", provider, op, duration)
	switch {
	case err != nil:
		logFields["error"] = err.Error()
		fl.logger.WithFields(logFields).Warn(msg)
	case duration > 5*time.Second:
		fl.logger.WithFields(logFields).Warn(msg)
	default:
		fl.logger.WithFields(logFields).Debug(msg)
	}
}
