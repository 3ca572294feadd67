package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure 配置全局zerolog日志，控制台输出加按大小滚动的日志文件
// file为空时只输出到控制台
func Configure(level zerolog.Level, file string) {
	zerolog.TimeFieldFormat = time.DateTime
	zerolog.DurationFieldUnit = time.Millisecond

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}

	var out io.Writer = console
	if file != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}

// ParseLevel 解析日志级别，无法识别时使用info
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
