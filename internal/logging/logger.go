// Package logging builds the zap logger used by clients created from a config file.
//
// Output goes to stderr unless a file path is configured, in which case the file is
// rotated by lumberjack. Never log credentials:
//
//	logger.Info("connected", zap.String("base_url", cfg.BaseURL))
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   FileOptions
}

// FileOptions configures a rotating log file. Sizes are in megabytes, ages in days.
type FileOptions struct {
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// New creates a logger from opts. Every entry carries component=ferresdb.
func New(opts Options) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "console", "text":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer(opts.File)), ParseLevel(opts.Level))
	return zap.New(core).With(zap.String("component", "ferresdb"))
}

// writer returns the rotating file when configured, stderr otherwise.
func writer(f FileOptions) io.Writer {
	if f.Path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSize,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAge,
		Compress:   f.Compress,
	}
}

// ParseLevel converts a level name to a zap level. Unrecognised names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
