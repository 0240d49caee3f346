// Package logging installs the process-wide slog default handler from
// AIDB_LOG_LEVEL, the way caboose-desktop wires its handler at startup
// before any core package logs anything.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var initOnce sync.Once

// Init installs a text slog handler writing to stderr at the level named
// by AIDB_LOG_LEVEL (TRACE, DEBUG, INFO, WARN, ERROR; default INFO).
// TRACE is mapped to slog's lowest level (one tick below Debug) since
// slog has no native trace level.
func Init() {
	initOnce.Do(func() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: LevelFromEnv(),
		})))
	})
}

// LevelFromEnv parses AIDB_LOG_LEVEL into a slog.Level, defaulting to Info.
func LevelFromEnv() slog.Level {
	return ParseLevel(os.Getenv("AIDB_LOG_LEVEL"))
}

// ParseLevel maps the spec's {TRACE, DEBUG, INFO, WARN, ERROR} vocabulary
// onto slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return slog.LevelDebug - 4
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "INFO", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
