// Package logging wraps zap with the engine's level/format conventions and
// file rotation, generalized to the daemon's --log-level flag and
// config-driven console/file sinks.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config controls logger construction.
type Config struct {
	Level          string
	Format         string // console|json
	FilePath       string // empty disables file output
	FileMaxSizeMB  int
	FileMaxAge     int
	FileMaxBackups int
	FileCompress   bool
}

// DynamicLogger wraps zap.Logger with the ability to switch the console
// level at runtime (used when the Config Resolver installs a new epoch
// with a different `flags.logLevel`).
type DynamicLogger struct {
	*zap.Logger
	level *zap.AtomicLevel
}

// New builds a DynamicLogger from Config.
func New(cfg Config) (*DynamicLogger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	cores := []zapcore.Core{
		zapcore.NewCore(encoderFor(cfg.Format), zapcore.Lock(zapcore.AddSync(os.Stdout)), level),
	}

	if cfg.FilePath != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
			MaxAge:     orDefault(cfg.FileMaxAge, 14),
			MaxBackups: orDefault(cfg.FileMaxBackups, 5),
			Compress:   cfg.FileCompress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), fileWriter, level))
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return &DynamicLogger{Logger: zap.New(core), level: &level}, nil
}

// SetLevel switches the logger's minimum level at runtime.
func (l *DynamicLogger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func encoderFor(format string) zapcore.Encoder {
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// Default builds a sane startup logger before config is resolved.
func Default() (*DynamicLogger, error) {
	l, err := New(Config{Level: LevelInfo, Format: FormatConsole})
	if err != nil {
		return nil, fmt.Errorf("build default logger: %w", err)
	}
	return l, nil
}
