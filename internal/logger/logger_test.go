package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestTranscriptWriters_WithDir(t *testing.T) {
	dir := t.TempDir()
	tr := Transcripts{Dir: dir}
	outW, errW, err := tr.Writers("t1")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	for _, p := range []string{"t1.stdout.log", "t1.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("transcript %s not created: %v", p, err)
		}
	}
}

func TestTranscriptWriters_NoDir(t *testing.T) {
	outW, errW, err := Transcripts{}.Writers("x")
	if err != nil || outW != nil || errW != nil {
		t.Fatalf("expected nil writers without dir, got %v %v %v", outW, errW, err)
	}
}

func TestTranscriptWriters_SanitizesName(t *testing.T) {
	dir := t.TempDir()
	outW, errW, err := Transcripts{Dir: dir}.Writers("../../etc/passwd")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	defer closeIf(outW)
	defer closeIf(errW)
	lo := outW.(*lj.Logger)
	if filepath.Dir(lo.Filename) != dir {
		t.Fatalf("transcript escaped dir: %s", lo.Filename)
	}
}

func TestRotationDefaults(t *testing.T) {
	l := Rotation{}.writer("x.log")
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
	l = Rotation{MaxSizeMB: 5, MaxBackups: 1, MaxAgeDays: 2, Compress: true}.writer("y.log")
	if l.MaxSize != 5 || l.MaxBackups != 1 || l.MaxAge != 2 || !l.Compress {
		t.Fatalf("explicit rotation not applied: %+v", l)
	}
}

func TestNewFormats(t *testing.T) {
	for _, f := range []string{"", "text", "json", "color"} {
		var buf bytes.Buffer
		lg, c, err := New(Config{Format: f, Level: "debug"}, &buf)
		if err != nil {
			t.Fatalf("format %q: %v", f, err)
		}
		lg.Debug("hello", "k", "v")
		closeIf(c)
		if !strings.Contains(buf.String(), "hello") {
			t.Fatalf("format %q: output missing message: %q", f, buf.String())
		}
	}
	if _, _, err := New(Config{Format: "xml"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "drode.log")
	lg, c, err := New(Config{File: path}, io.Discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Info("to-file")
	closeIf(c)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "to-file") {
		t.Fatalf("log file missing record: %q", b)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
