package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("dataset_loaded", "records", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(out, `"msg":"dataset_loaded"`) || !strings.Contains(out, `"records":3`) {
		t.Errorf("unexpected output %q", out)
	}
	if slog.Default() != l {
		t.Error("SetupWriter should install the default logger")
	}
}
