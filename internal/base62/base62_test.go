package base62

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 61, 62, 1000000, 1<<62 - 1}
	for _, n := range cases {
		s, err := Encode(n, 7)
		if err != nil {
			t.Fatalf("Encode(%d): %v", n, err)
		}
		got, err := Decode(s)
		if err != nil {
			t.Fatalf("Decode(%q): %v", s, err)
		}
		if got != n {
			t.Errorf("round trip mismatch: encode(%d)=%q decode=%d", n, s, got)
		}
	}
}

func TestEncodeMinLengthPadding(t *testing.T) {
	s, err := Encode(1000000, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 7 {
		t.Fatalf("want length 7, got %d (%q)", len(s), s)
	}
	again, err := Encode(1000000, 7)
	if err != nil {
		t.Fatal(err)
	}
	if s != again {
		t.Fatalf("encode is not deterministic: %q vs %q", s, again)
	}
}

func TestEncodeInjective(t *testing.T) {
	seen := map[string]int64{}
	for n := int64(0); n < 5000; n++ {
		s, err := Encode(n, 1)
		if err != nil {
			t.Fatal(err)
		}
		if prev, ok := seen[s]; ok {
			t.Fatalf("collision: %d and %d both encode to %q", prev, n, s)
		}
		seen[s] = n
	}
}

func TestEncodeNegativeRejected(t *testing.T) {
	if _, err := Encode(-1, 1); err == nil {
		t.Fatal("expected error for negative input")
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("AA3Qf2b") {
		t.Error("expected valid")
	}
	if IsValid("") {
		t.Error("expected empty string invalid")
	}
	if IsValid("has space") {
		t.Error("expected space to be invalid")
	}
	if IsValid("has-dash") {
		t.Error("expected dash to be invalid")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode(""); err == nil {
		t.Fatal("expected error for empty string")
	}
	if _, err := Decode("!!!"); err == nil {
		t.Fatal("expected error for invalid characters")
	}
}
