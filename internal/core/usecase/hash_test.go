package usecase

import (
	"strings"
	"testing"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a, err := Fingerprint(strings.NewReader("same content"))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	b, err := Fingerprint(strings.NewReader("same content"))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if a != b {
		t.Fatalf("same bytes must hash equal: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprintKnownVector(t *testing.T) {
	got, err := Fingerprint(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Fingerprint(abc) = %s, want %s", got, want)
	}
}

func TestFingerprintDiffersPerContent(t *testing.T) {
	a, _ := Fingerprint(strings.NewReader("one"))
	b, _ := Fingerprint(strings.NewReader("two"))
	if a == b {
		t.Fatalf("different bytes must not collide")
	}
}
