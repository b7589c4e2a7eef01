// Package logging wraps zap for the engine's internal diagnostics.
//
// The engine never logs on the should_block hot path; logging happens only
// around load_rules, reset_stats, and construction/destruction. New never
// returns a nil *Logger on success; an unconfigured Config degrades to
// zap's no-op logger (the same logger Nop wraps), so embedding hosts are never required to
// configure logging. SwitchToConfiguredLevel is safe to call on a nil
// receiver; other methods are not.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the zap encoder used for an output.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatText    Format = "text"
)

// Level mirrors zapcore levels as plain strings so callers building Options
// from YAML never need to import zap themselves.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// RotationConfig configures lumberjack log-file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxAgeDays int  `yaml:"max_age_days"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// ConsoleConfig configures the console logging sink.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   Level  `yaml:"level"`
	Format  Format `yaml:"format"`
}

// FileConfig configures the rotating-file logging sink.
type FileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Level    Level          `yaml:"level"`
	Format   Format         `yaml:"format"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
}

// Config is the full logger configuration. The zero value is a disabled
// logger (New returns a no-op *Logger in that case, never an error).
type Config struct {
	Level   Level         `yaml:"level"`
	Console ConsoleConfig `yaml:"console"`
	File    FileConfig    `yaml:"file"`
}

// DefaultConfig returns a console-only, info-level configuration.
func DefaultConfig() Config {
	return Config{
		Level: LevelInfo,
		Console: ConsoleConfig{
			Enabled: true,
			Format:  FormatConsole,
		},
	}
}

// Logger wraps zap.Logger with the ability to switch the console/file levels
// at runtime without rebuilding cores, so a host can temporarily raise
// verbosity around a noisy load_rules call without restarting the process.
type Logger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
	configured   Config
}

// New builds a Logger from cfg. An all-disabled Config yields a working
// no-op logger rather than an error, since logging is never required to use
// the engine.
func New(cfg Config) (*Logger, error) {
	if !cfg.Console.Enabled && !cfg.File.Enabled {
		return &Logger{Logger: zap.NewNop(), configured: cfg}, nil
	}

	globalLevel := parseLevel(cfg.Level)

	var cores []zapcore.Core
	var consoleLevel, fileLevel *zap.AtomicLevel

	if cfg.Console.Enabled {
		lvl := zap.NewAtomicLevelAt(resolveLevel(cfg.Console.Level, globalLevel))
		consoleLevel = &lvl
		cores = append(cores, zapcore.NewCore(encoderFor(cfg.Console.Format), zapcore.Lock(os.Stdout), consoleLevel))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("logging: file.path must be set when file logging is enabled")
		}
		lvl := zap.NewAtomicLevelAt(resolveLevel(cfg.File.Level, globalLevel))
		fileLevel = &lvl
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.Rotation.MaxSizeMB,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			MaxBackups: cfg.File.Rotation.MaxBackups,
			Compress:   cfg.File.Rotation.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoderFor(cfg.File.Format), writer, fileLevel))
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return &Logger{
		Logger:       zap.New(core),
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
		configured:   cfg,
	}, nil
}

// Nop returns a disabled logger; convenient for engine.New callers that have
// not configured logging.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SwitchToConfiguredLevel restores the originally configured levels, undoing
// any temporary elevation (e.g. during a noisy load_rules call).
func (l *Logger) SwitchToConfiguredLevel() {
	if l == nil {
		return
	}
	globalLevel := parseLevel(l.configured.Level)
	if l.consoleLevel != nil {
		l.consoleLevel.SetLevel(resolveLevel(l.configured.Console.Level, globalLevel))
	}
	if l.fileLevel != nil {
		l.fileLevel.SetLevel(resolveLevel(l.configured.File.Level, globalLevel))
	}
}

func parseLevel(level Level) zapcore.Level {
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

func resolveLevel(level Level, global zapcore.Level) zapcore.Level {
	if level != "" {
		return parseLevel(level)
	}
	return global
}

func encoderFor(format Format) zapcore.Encoder {
	switch format {
	case FormatJSON:
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case FormatText:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
}
