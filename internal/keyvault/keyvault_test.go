package keyvault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, KeySize)
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	v, err := Open(path, testKey())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := v.Set("openrouter", "sk-or-secret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := v.Get("openrouter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-or-secret" {
		t.Fatalf("got %q", got)
	}

	// Reopen from disk: the key survives but never in plaintext.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}
	if bytes.Contains(raw, []byte("sk-or-secret")) {
		t.Fatalf("plaintext key on disk")
	}
	v2, err := Open(path, testKey())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err = v2.Get("openrouter")
	if err != nil || got != "sk-or-secret" {
		t.Fatalf("after reopen: %q, %v", got, err)
	}
}

func TestWrongVaultKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	v, _ := Open(path, testKey())
	if err := v.Set("ollama", "irrelevant"); err != nil {
		t.Fatalf("set: %v", err)
	}

	other := bytes.Repeat([]byte{9}, KeySize)
	v2, err := Open(path, other)
	if err != nil {
		t.Fatalf("open with other key: %v", err)
	}
	if _, err := v2.Get("ollama"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("err = %v, want ErrCorrupted", err)
	}
}

func TestMissingAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	v, _ := Open(path, testKey())
	if _, err := v.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := v.Set("a", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := v.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := v.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key still present")
	}
	if err := v.Delete("a"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestBadVaultKeySize(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "k.json"), []byte("short")); err == nil {
		t.Fatalf("expected error for short vault key")
	}
}
