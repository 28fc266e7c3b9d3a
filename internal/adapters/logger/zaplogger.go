package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"paperTrader/internal/ports"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects and tunes the logger built by New.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text, console or json
	File       string // Optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ZapLogger implements ports.Logger on top of zap.
type ZapLogger struct {
	z *zap.Logger
}

// New builds the logger described by cfg. Plain text to stderr uses
// StdLogger; json, console or any file output uses zap. The returned func
// flushes buffered entries.
func New(cfg Config) (ports.Logger, func() error, error) {
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "text"
	}
	switch format {
	case "text", "console", "json":
	default:
		return nil, nil, fmt.Errorf("%w: unknown log format %q", ports.ErrConfigurationError, cfg.Format)
	}

	if format == "text" && cfg.File == "" {
		return NewStdLogger(ParseLevel(cfg.Level)), func() error { return nil }, nil
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   true,
		})
	}
	z := NewZapLogger(out, format == "json", ParseLevel(cfg.Level))
	return z, z.Sync, nil
}

// NewZapLogger creates a zap-backed logger writing to w.
func NewZapLogger(w io.Writer, json bool, level LogLevel) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapLevel(level))
	return &ZapLogger{z: zap.New(core)}
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.z.Debug(msg, toZap(fields)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.z.Info(msg, toZap(fields)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.z.Warn(msg, toZap(fields)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.z.Error(msg, append(toZap(fields), zap.Error(err))...)
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

func toZap(fields []map[string]interface{}) []zap.Field {
	merged := merge(fields)
	out := make([]zap.Field, 0, len(merged)+1)
	for _, k := range sortedKeys(merged) {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
