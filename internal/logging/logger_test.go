package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		" WARN ":  "warn",
		"error":   "error",
		"":        "info",
		"verbose": "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRotatingFileDefaults(t *testing.T) {
	w := RotatingFile("logs/test.log", 0, 0, 0)
	if w.MaxSize != 100 || w.MaxBackups != 10 || w.MaxAge != 30 {
		t.Fatalf("unexpected defaults: %+v", w)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	logger := New(Options{Level: "warn"})
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zap.ErrorLevel) {
		t.Fatalf("error should be enabled at warn level")
	}
}
