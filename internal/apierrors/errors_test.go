package apierrors

import (
	"errors"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindTransient, "probe-failed", cause, "probing collision")

	if !Is(err, KindTransient) {
		t.Fatal("expected Is to match the wrapped kind")
	}
	if Is(err, KindFatal) {
		t.Fatal("expected Is not to match a different kind")
	}
}

func TestCodeOfReturnsStableCode(t *testing.T) {
	err := NotFound("mapping-not-found", "abc1234")
	if CodeOf(err) != "mapping-not-found" {
		t.Fatalf("got %q", CodeOf(err))
	}
}

func TestCodeOfEmptyForNonTaxonomyError(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Fatal("expected empty code for a non-*Error value")
	}
}

func TestUnwrapReachesOriginalCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransient, "store-get", cause, "fetching mapping")

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the wrapped cause")
	}
}

func TestErrorStringIncludesKindAndMessage(t *testing.T) {
	err := Validation("bad-input", "long url is empty")
	got := err.Error()
	want := "validation: long url is empty"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
