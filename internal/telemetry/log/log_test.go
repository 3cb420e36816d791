package log

import "testing"

func TestNewBuildsProductionLoggerWithValidLevel(t *testing.T) {
	l, err := New(ModeProduction, "info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewBuildsDevelopmentLogger(t *testing.T) {
	l, err := New(ModeDevelopment, "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	if _, err := New(ModeProduction, "not-a-level"); err == nil {
		t.Fatal("expected an error for an invalid level string")
	}
}

func TestNewNopDiscardsWithoutPanicking(t *testing.T) {
	l := NewNop()
	l.Info("should be discarded")
}
