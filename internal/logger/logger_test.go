package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewDisabledIsNop(t *testing.T) {
	l := New(false, "debug")
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("disabled logger must not log")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
