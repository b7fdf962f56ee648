// Package logger is the process-wide leveled logger, backed by zap.
//
// Call sites use printf-style helpers (Debug, Info, Warn, Error). The level
// can be changed at runtime with SetLevel; Configure swaps the encoder and
// output once at startup.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats accepted by Configure.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects the logger's level, encoding and destination.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string

	// Format is "text" (human readable) or "json". Default: text
	Format string

	// Output is "stdout", "stderr" or a file path. Default: stdout
	Output string
}

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar atomic.Pointer[zap.SugaredLogger]
)

func init() {
	core := zapcore.NewCore(newEncoder(FormatText), zapcore.Lock(os.Stdout), level)
	sugar.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
}

// Configure rebuilds the global logger from cfg.
func Configure(cfg Config) error {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	format := strings.ToLower(cfg.Format)
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (want %s or %s)", cfg.Format, FormatText, FormatJSON)
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return fmt.Errorf("open log output %q: %w", output, err)
	}

	level.SetLevel(lvl)
	core := zapcore.NewCore(newEncoder(format), sink, level)
	old := sugar.Swap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
	_ = old.Sync()
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == FormatJSON {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// ParseLevel parses debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if s == "" {
		return lvl, fmt.Errorf("empty log level")
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", s)
	}
	switch lvl {
	case zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel:
		return lvl, nil
	}
	return lvl, fmt.Errorf("unsupported log level %q", s)
}

// SetLevel changes the level at runtime. Unknown levels are ignored.
func SetLevel(s string) {
	lvl, err := ParseLevel(s)
	if err != nil {
		return
	}
	level.SetLevel(lvl)
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// Enabled reports whether messages at s would be written.
func Enabled(s string) bool {
	lvl, err := ParseLevel(s)
	return err == nil && level.Enabled(lvl)
}

// L returns the underlying logger for structured call sites.
func L() *zap.SugaredLogger {
	return sugar.Load().WithOptions(zap.AddCallerSkip(-1))
}

// With returns a structured logger carrying the given key-value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return L().With(keysAndValues...)
}

// Sync flushes buffered entries.
func Sync() error {
	return sugar.Load().Sync()
}

func Debug(format string, v ...any) {
	sugar.Load().Debugf(format, v...)
}

func Info(format string, v ...any) {
	sugar.Load().Infof(format, v...)
}

func Warn(format string, v ...any) {
	sugar.Load().Warnf(format, v...)
}

func Error(format string, v ...any) {
	sugar.Load().Errorf(format, v...)
}
