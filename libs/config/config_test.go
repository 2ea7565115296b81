package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8000"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8000")
	if err != nil || p != "8000" {
		t.Fatalf("expected fallback 8000, got %q (%v)", p, err)
	}
}

func TestIntAndSeconds(t *testing.T) {
	t.Setenv("TEST_INT", "-3")
	if got := Int("TEST_INT", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
	t.Setenv("TEST_INT", "12")
	if got := Seconds("TEST_INT", time.Second); got != 12*time.Second {
		t.Fatalf("expected 12s, got %s", got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !Bool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("TEST_BOOL", "garbage")
	if Bool("TEST_BOOL", false) {
		t.Fatal("expected fallback false")
	}

	t.Setenv("TEST_LIST", " a, ,b ,")
	got := List("TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}
