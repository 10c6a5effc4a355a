package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	log, err := New(false, "warn")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn should be enabled at warn level")
	}

	if _, err := New(true, ""); err != nil {
		t.Fatalf("New(production) error = %v", err)
	}
	if _, err := New(true, "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
