package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Bool accepts 1/true/t/yes/y/on and 0/false/f/no/n/off. Unset or
// unrecognised values yield fallback.
func Bool(key string, fallback bool) bool {
	switch strings.ToLower(String(key, "")) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// Int returns fallback when the variable is unset, not a number, or below min.
func Int(key string, fallback, min int) int {
	v, err := strconv.Atoi(String(key, ""))
	if err != nil || v < min {
		return fallback
	}
	return v
}

// Seconds reads a whole number of seconds. Non-positive values yield fallback.
func Seconds(key string, fallback time.Duration) time.Duration {
	n := Int(key, 0, 1)
	if n == 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// List splits a comma separated variable, dropping empty items.
func List(key, fallback string) []string {
	raw := String(key, fallback)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
