// Package logger 提供基于 slog 的应用日志与审计日志。
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	Rotation    Rotation    `json:"rotation" yaml:"rotation"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// Rotation 控制文件输出的滚动策略。
type Rotation struct {
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress"`
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Later calls replace the
// previous configuration.
func Init(cfg Config) error {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	handler, outs, err := buildHandler(cfg.Format, cfg.OutputPaths, cfg.Rotation, handlerOpts)
	if err != nil {
		return err
	}
	app := slog.New(handler)
	audit := app
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return errors.New("审计日志开启时必须配置 path")
		}
		rot := &lumberjack.Logger{
			Filename:   cfg.Audit.Path,
			MaxSize:    positiveOr(cfg.Audit.MaxSizeMB, 100),
			MaxBackups: positiveOr(cfg.Audit.MaxBackups, 7),
			MaxAge:     positiveOr(cfg.Audit.MaxAgeDays, 30),
		}
		outs = append(outs, rot)
		audit = slog.New(slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: slog.LevelInfo})).
			With(slog.String("stream", "audit"))
	}

	mu.Lock()
	old := closers
	defaultLogger, auditLogger, closers = app, audit, outs
	mu.Unlock()
	slog.SetDefault(app)

	for _, c := range old {
		_ = c.Close()
	}
	return nil
}

func buildHandler(format string, outputs []string, rot Rotation, opts *slog.HandlerOptions) (slog.Handler, []io.Closer, error) {
	var (
		writers []io.Writer
		outs    []io.Closer
	)
	for _, out := range outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file := &lumberjack.Logger{
				Filename:   out,
				MaxSize:    positiveOr(rot.MaxSizeMB, 100),
				MaxBackups: positiveOr(rot.MaxBackups, 5),
				MaxAge:     positiveOr(rot.MaxAgeDays, 14),
				Compress:   rot.Compress,
			}
			writers = append(writers, file)
			outs = append(outs, file)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), outs, nil
	}
	return slog.NewJSONHandler(writer, opts), outs, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	l := auditLogger
	mu.RUnlock()
	if l == nil {
		return L()
	}
	return l
}

// Sync closes rotating outputs so buffered entries reach disk.
func Sync() error {
	mu.Lock()
	outs := closers
	closers = nil
	mu.Unlock()

	var err error
	for _, c := range outs {
		err = errors.Join(err, c.Close())
	}
	return err
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
