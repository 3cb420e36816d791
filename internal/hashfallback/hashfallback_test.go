package hashfallback

import (
	"context"
	"testing"

	"github.com/jordigilh/urlshort/internal/apierrors"
)

type fakeProber struct {
	exists func(code string) bool
	calls  int
}

func (f *fakeProber) ExistsByShortCode(_ context.Context, code string) (bool, error) {
	f.calls++
	return f.exists(code), nil
}

func TestGenerateSucceedsOnFirstAttemptWhenFree(t *testing.T) {
	p := &fakeProber{exists: func(string) bool { return false }}
	res, err := Generate(context.Background(), p, "https://example.com", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code == "" {
		t.Fatal("expected a non-empty code")
	}
	if res.Attempts != 1 || res.Collisions != 0 {
		t.Fatalf("want 1 attempt / 0 collisions, got %+v", res)
	}
}

func TestGenerateRetriesOnCollisionThenSucceeds(t *testing.T) {
	seen := 0
	p := &fakeProber{exists: func(string) bool {
		seen++
		return seen < 3 // first two probes collide, third is free
	}}
	res, err := Generate(context.Background(), p, "https://example.com", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 || res.Collisions != 2 {
		t.Fatalf("want 3 attempts / 2 collisions, got %+v", res)
	}
}

func TestGenerateExhaustsRetriesAndReturnsConflict(t *testing.T) {
	p := &fakeProber{exists: func(string) bool { return true }}
	opts := DefaultOptions()
	opts.MaxRetries = 2

	_, err := Generate(context.Background(), p, "https://example.com", opts)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !apierrors.Is(err, apierrors.KindConflict) {
		t.Fatalf("want KindConflict, got %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("want exactly MaxRetries probe calls, got %d", p.calls)
	}
}

func TestGeneratePropagatesProberTransientError(t *testing.T) {
	p := &failingProber{}
	_, err := Generate(context.Background(), p, "https://example.com", DefaultOptions())
	if !apierrors.Is(err, apierrors.KindTransient) {
		t.Fatalf("want KindTransient, got %v", err)
	}
}

type failingProber struct{}

func (failingProber) ExistsByShortCode(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}
