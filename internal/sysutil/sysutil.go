// Package sysutil holds process-level helpers shared by cmd/server: log
// level selection and environment flag parsing.
package sysutil

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps a LOG_LEVEL value to a zerolog level. Matching is
// case-insensitive; "warning" is accepted for warn. Empty or unknown values
// yield info.
func ParseLevel(lvl string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	switch s {
	case "debug", "info", "warn", "error", "fatal", "panic":
		l, err := zerolog.ParseLevel(s)
		if err == nil {
			return l
		}
	}
	return zerolog.InfoLevel
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// IsTruthy reports whether v reads as an enabled flag: 1, true, yes, y or on.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// EnvFlag reports whether the environment variable name is set to a truthy
// value.
func EnvFlag(name string) bool {
	return IsTruthy(os.Getenv(name))
}

// FirstNonEmpty returns the first value that is not blank, trimmed.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
