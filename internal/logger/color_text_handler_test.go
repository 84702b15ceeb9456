package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)).With("component", "test")

	lg.Warn("careful")
	out := buf.String()
	// TextHandler quotes the message, so the escape codes appear escaped.
	if !strings.Contains(out, `\x1b[33mWARN\x1b[0m  careful`) {
		t.Fatalf("missing coloured level prefix: %q", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Fatalf("WithAttrs lost attributes: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time attribute should be hidden: %q", out)
	}
}
