// Package logger provides structured logging for the bridge.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap sugared logger with the key-value call style used
// throughout the bridge.
type Logger struct {
	sugar *zap.SugaredLogger
}

// Options control logger construction.
type Options struct {
	Level     string // debug, info, warn, error
	Directory string // when set, logs also rotate into <dir>/voxl-mqtt-bridge.log
}

// NewLogger builds a logger writing console output to stdout and, when a
// directory is configured, JSON output to a rotating file.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	switch opts.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stdout),
			level,
		),
	}

	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Directory, "voxl-mqtt-bridge.log"),
			MaxSize:    10, // megabytes
			MaxAge:     14, // days
			MaxBackups: 5,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &Logger{sugar: z.Sugar()}, nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// Debug logs a message at Debug level with key-value pairs.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, args...)
}

// Info logs a message at Info level with key-value pairs.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, args...)
}

// Warn logs a message at Warn level with key-value pairs.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, args...)
}

// Error logs a message at Error level with key-value pairs.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, args...)
}

// Fatal logs a message at Fatal level and exits the program.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.sugar.Fatalw(msg, args...)
}
