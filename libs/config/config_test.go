package config

import (
	"testing"
	"time"
)

func TestBool(t *testing.T) {
	cases := map[string]bool{"yes": true, "ON": true, "0": false, "off": false}
	for raw, want := range cases {
		t.Setenv("INKFORM_TEST_BOOL", raw)
		if got := Bool("INKFORM_TEST_BOOL", !want); got != want {
			t.Fatalf("Bool(%q) = %v, want %v", raw, got, want)
		}
	}
	t.Setenv("INKFORM_TEST_BOOL", "maybe")
	if !Bool("INKFORM_TEST_BOOL", true) {
		t.Fatal("expected fallback for unrecognised value")
	}
}

func TestIntAndSeconds(t *testing.T) {
	t.Setenv("INKFORM_TEST_INT", "-3")
	if got := Int("INKFORM_TEST_INT", 60, 1); got != 60 {
		t.Fatalf("expected fallback below min, got %d", got)
	}
	t.Setenv("INKFORM_TEST_INT", "15")
	if got := Seconds("INKFORM_TEST_INT", time.Minute); got != 15*time.Second {
		t.Fatalf("expected 15s, got %s", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("INKFORM_TEST_PORT", "70000")
	if _, err := Port("INKFORM_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestList(t *testing.T) {
	t.Setenv("INKFORM_TEST_LIST", " a, ,b ,")
	got := List("INKFORM_TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %#v", got)
	}
}
