package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("ESCROW_TEST_PASS", "hunter2")
	src := NewSource("ESCROW_TEST_PASS", "alice")
	src.prompt = func(string) ([]byte, error) {
		t.Fatalf("prompt should not be used when the variable is set")
		return nil, nil
	}
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected passphrase %q: %v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("ESCROW_TEST_PASS", "  ")
	if _, err := NewSource("ESCROW_TEST_PASS", "alice").Get(); err == nil {
		t.Fatalf("expected empty variable to be rejected")
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	calls := 0
	src := NewSource("", "bob")
	src.prompt = func(label string) ([]byte, error) {
		calls++
		if label != "bob" {
			t.Fatalf("unexpected label %q", label)
		}
		return []byte("secret"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "secret" {
			t.Fatalf("unexpected passphrase %q: %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one prompt, got %d", calls)
	}
}

func TestSourcePromptFailures(t *testing.T) {
	src := NewSource("ESCROW_TEST_UNSET", "carol")
	src.prompt = func(string) ([]byte, error) { return nil, errNoTerminal }
	_, err := src.Get()
	if !errors.Is(err, errNoTerminal) || !strings.Contains(err.Error(), "ESCROW_TEST_UNSET") {
		t.Fatalf("unexpected error: %v", err)
	}

	blank := NewSource("", "carol")
	blank.prompt = func(string) ([]byte, error) { return []byte("   "), nil }
	if _, err := blank.Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
