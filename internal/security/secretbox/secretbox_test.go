package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T, seed byte) string {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := New(testKey(t, 1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := "hola mundo ✓ — secreto"
	ct, err := box.Seal([]byte(msg))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	pt, err := box.Open(ct)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if string(pt) != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	box, err := New(testKey(t, 200))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	ct, err := box.Seal([]byte("top secret"))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01 // flip
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := box.Open(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestNew_ErrorWhenNoKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error when key missing")
	}
	if _, err := New(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected error on short key")
	}
}
