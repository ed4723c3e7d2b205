// Package logger 进程级 logrus 实例：控制台 + 可选的 lumberjack 滚动文件。
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger = logrus.StandardLogger()

	logMu       sync.Mutex
	currentFile string
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`             // debug, info, warn, error
	OutputFile string `yaml:"output_file" json:"output_file"` // 为空则只输出到控制台
	MaxSize    int    `yaml:"max_size" json:"max_size"`       // MB
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"` // 天
	Compress   bool   `yaml:"compress" json:"compress"`
	// NoColor 输出到非终端时关闭颜色
	NoColor bool `yaml:"no_color" json:"no_color"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		OutputFile: "logs/copybot.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
}

// ParseLevel 无法识别时回落到 info
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func formatter(noColor bool) logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // yy-mm-dd HH:MM:ss
		ForceColors:     !noColor,
		DisableColors:   noColor,
	}
}

// Init 初始化日志系统。全局 logrus 同时指向相同输出，
// 各组件通过 logrus.WithField 创建的 logger 也会写入文件。
func Init(config Config) error {
	return InitWithStdout(config, os.Stdout)
}

// InitWithStdout 同 Init，可替换控制台输出
func InitWithStdout(config Config, stdout io.Writer) error {
	logMu.Lock()
	defer logMu.Unlock()

	level := ParseLevel(config.Level)
	writers := []io.Writer{stdout}
	file := ""
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		file = config.OutputFile
	}
	out := io.MultiWriter(writers...)

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter(config.NoColor))

	Logger = logrus.StandardLogger()
	currentFile = file
	return nil
}

// InitDefault 使用默认配置初始化
func InitDefault() error {
	return Init(DefaultConfig())
}

// CurrentFile 当前日志文件路径
func CurrentFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentFile
}

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }

func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// Component 带 component 字段的 logger
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
