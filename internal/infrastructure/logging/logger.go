package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
)

const serviceName = "dccbroker"

// Logger is an slog.Logger carrying the service and version fields, plus
// the rotating file it may own.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds the logger described by the logging section of config.yaml.
// Output "file" goes to a lumberjack-rotated file and "both" tees that file
// with stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		output io.Writer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "file", "both":
		rotating := newFileWriter(cfg.File)
		closer = rotating
		output = rotating
		if strings.EqualFold(cfg.Output, "both") {
			output = io.MultiWriter(os.Stdout, rotating)
		}
	default:
		output = os.Stdout
	}

	l := newWithWriter(output, cfg, version)
	l.closer = closer
	return l
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

func newFileWriter(fc config.FileLoggingConfig) *lumberjack.Logger {
	path := fc.Path
	if path == "" {
		path = "./logs/" + serviceName + ".log"
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fc.MaxSize,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAge,
		Compress:   fc.Compress,
	}
}

// parseLevel accepts slog level names ("debug", "warn", "error+2", ...)
// and "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child logger with extra fields. Only the root logger
// should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close flushes and closes a rotating log file. It is a no-op for console
// output.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the logger used until config.yaml has been read.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}, "dev")
}
