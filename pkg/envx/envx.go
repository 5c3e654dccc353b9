// Package envx reads typed configuration values from environment variables
// with defaults. Every binary in this repo builds its Config through it.
package envx

import (
	"os"
	"strconv"
	"time"
)

// String returns the value of key or def when unset or empty.
func String(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// Int returns the integer value of key or def when unset or unparsable.
func Int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return def
}

// Duration parses key as a Go duration ("1h", "30m", "90s"). Plain integers
// are read as minutes for compatibility with older deployments.
func Duration(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return def
}
