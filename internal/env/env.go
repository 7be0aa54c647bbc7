// Package env reads typed configuration values from the process environment.
package env

import (
	"os"
	"strconv"
	"strings"
)

// String returns the trimmed environment variable or fallback when unset/empty.
func String(name, fallback string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	return v
}

// Int returns the parsed integer environment variable or fallback when unset/invalid.
func Int(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Bool returns the parsed boolean environment variable or fallback when unset/invalid.
func Bool(name string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
