// Package logger installs the process-wide slog logger. Records are encoded
// by zap; the level can change at runtime.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Options configures Configure.
type Options struct {
	Level string
	// File, when set, receives a copy of every record with size-based
	// rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup logs JSON to stdout at level.
func Setup(lvl string) {
	Configure(Options{Level: lvl})
}

// Configure installs a new default logger.
func Configure(opts Options) {
	SetLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 7),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   true,
		}
		core = zapcore.NewTee(core, zapcore.NewCore(enc, zapcore.AddSync(rotating), level))
	}

	slog.SetDefault(slog.New(zapslog.NewHandler(core)))
}

// SetLevel changes the level of the installed logger. Unknown and empty
// levels mean info.
func SetLevel(lvl string) {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(lvl)))
	if err != nil || lvl == "" {
		l = zapcore.InfoLevel
	}
	level.SetLevel(l)
}

// Level returns the current level as an slog level.
func Level() slog.Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
