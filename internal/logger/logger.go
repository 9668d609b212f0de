package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/oggyb/matchmaker/internal/config"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type Config struct {
	Level      string
	Format     Format
	Component  string
	WithSource bool

	// FilePath, when set, tees output into a rotating file.
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// FromConfig builds a logger from app config. The returned logger is meant to be
// passed down explicitly; this package keeps no process-wide instance.
func FromConfig(c *config.Config) *slog.Logger {
	if c == nil {
		return New(Config{})
	}
	return New(Config{
		Level:      c.Log.Level,
		Format:     Format(c.Log.Format),
		Component:  c.Log.Component,
		WithSource: c.Log.Source,
		FilePath:   c.Log.File.Path,
		MaxSizeMB:  c.Log.File.MaxSizeMB,
		MaxAgeDays: c.Log.File.MaxAgeDays,
		MaxBackups: c.Log.File.MaxBackups,
		Compress:   c.Log.File.Compress,
	})
}

// New writes to stdout, plus the rotating file if FilePath is set.
func New(c Config) *slog.Logger {
	var w io.Writer = os.Stdout
	if c.FilePath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSizeMB, // megabytes
			MaxAge:     c.MaxAgeDays,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		})
	}
	return NewWithWriter(w, c)
}

// NewWithWriter builds the logger on top of an arbitrary writer.
func NewWithWriter(w io.Writer, c Config) *slog.Logger {
	format := Format(strings.ToLower(string(c.Format)))
	opts := &slog.HandlerOptions{
		Level:     parseLevel(c.Level),
		AddSource: c.WithSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && format != FormatJSON {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.DateTime))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	base := slog.New(handler)
	if c.Component != "" {
		base = base.With("component", c.Component)
	}
	return base
}

// Discard is a logger that drops everything. Handy in tests and for optional deps.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- helpers ---

func parseLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
