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

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Rotation follows lumberjack semantics. Zero values select the defaults above.
type Rotation struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

func (r Rotation) writer(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   r.Compress,
	}
}

// Config describes the daemon's own log output.
// Format is one of "text", "json" or "color". When File is set, records go
// to a rotating file in addition to the console writer.
type Config struct {
	Level    string   `mapstructure:"level"`
	Format   string   `mapstructure:"format"`
	File     string   `mapstructure:"file"`
	Rotation Rotation `mapstructure:",squash"`
}

// New builds a logger writing to console (usually os.Stderr) and, if
// configured, the rotating log file. The returned closer releases the file.
func New(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if console == nil {
		console = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	w := console
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		fw := cfg.Rotation.writer(cfg.File)
		closer = fw
		w = io.MultiWriter(console, fw)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "color":
		h = NewColorTextHandler(w, opts, true)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Transcripts configures per-session output capture.
// Files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type Transcripts struct {
	Dir      string
	Rotation Rotation
}

// Writers returns rotating writers for stdout and stderr of the named session.
// Both are nil when Dir is empty.
func (t Transcripts) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	if t.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(t.Dir, 0o750); err != nil {
		return nil, nil, err
	}
	name = sanitize(name)
	outW := t.Rotation.writer(filepath.Join(t.Dir, fmt.Sprintf("%s.stdout.log", name)))
	errW := t.Rotation.writer(filepath.Join(t.Dir, fmt.Sprintf("%s.stderr.log", name)))
	return outW, errW, nil
}

// sanitize keeps session ids from escaping the transcript directory.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	s := strings.ReplaceAll(b.String(), "..", "__")
	if s == "" {
		return "session"
	}
	return s
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
