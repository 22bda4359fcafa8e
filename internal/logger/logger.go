package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon log and where overlay output is captured.
type Config struct {
	Level  string     `mapstructure:"level"`  // debug, info, warn, error
	Format string     `mapstructure:"format"` // text, json, color
	File   FileConfig `mapstructure:"file"`
}

// FileConfig follows lumberjack semantics. Path is the daemon log file. Dir,
// StdoutPath and StderrPath are used for process output capture:
// if StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	Dir        string `mapstructure:"dir"`
	StdoutPath string `mapstructure:"stdout"`
	StderrPath string `mapstructure:"stderr"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds a slog.Logger. When File.Path is set, records go to a rotated file
// in addition to w. The returned closer releases the file and is never nil.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer) {
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.File.Path), 0o750)
		f := cfg.File.rotating(cfg.File.Path)
		w = io.MultiWriter(w, f)
		closer = f
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "color":
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
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

// ProcessWriters returns writers for stdout and stderr of the named process.
// Both are nil when no capture destination is configured.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	fc := c.File
	stdout := fc.StdoutPath
	stderr := fc.StderrPath
	if stdout == "" && fc.Dir != "" {
		stdout = filepath.Join(fc.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && fc.Dir != "" {
		stderr = filepath.Join(fc.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if fc.Dir != "" {
		if err := os.MkdirAll(fc.Dir, 0o750); err != nil {
			return nil, nil, err
		}
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = fc.rotating(stdout)
	}
	if stderr != "" {
		errW = fc.rotating(stderr)
	}
	return outW, errW, nil
}

// Capturing reports whether process output capture is configured.
func (c Config) Capturing() bool {
	return c.File.Dir != "" || c.File.StdoutPath != "" || c.File.StderrPath != ""
}

func (fc FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(fc.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(fc.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(fc.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   fc.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
