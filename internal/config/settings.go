package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Settings are the resolved, typed values of the global options.
type Settings struct {
	PauseTimeout       time.Duration
	PauseInterval      time.Duration
	LockAcquireTimeout time.Duration
	ExitGuardEnabled   bool
	LogLevel           slog.Level
	LogFile            string
	LogFormat          string
	LogMaxSize         int
	LogMaxFiles        int
}

// DefaultSettings resolves the schema defaults, ignoring the environment.
func DefaultSettings() Settings {
	settings, err := settingsFrom(DefaultSchema().Defaults())
	if err != nil {
		panic(err)
	}
	return settings
}

// Resolve returns the effective Settings for c: environment overrides first,
// then values from c, then schema defaults. A nil c uses defaults only.
func Resolve(c *Config) (Settings, error) {
	effective, err := DefaultSchema().Effective(c)
	if err != nil {
		return Settings{}, err
	}
	return settingsFrom(effective)
}

// settingsFrom reads an effective config, whose values are already known to
// parse, and applies the range checks the types cannot express.
func settingsFrom(c *Config) (Settings, error) {
	level, err := ParseLevel(c.GetString(KeyLogLevel))
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	out := Settings{
		PauseTimeout:       c.GetDuration(KeyPauseTimeout),
		PauseInterval:      c.GetDuration(KeyPauseInterval),
		LockAcquireTimeout: c.GetDuration(KeyLockAcquireTimeout),
		ExitGuardEnabled:   c.GetBool(KeyExitGuardEnabled),
		LogLevel:           level,
		LogFile:            c.GetString(KeyLogFile),
		LogFormat:          strings.ToLower(c.GetString(KeyLogFormat)),
		LogMaxSize:         c.GetInt(KeyLogMaxSize),
		LogMaxFiles:        c.GetInt(KeyLogMaxFiles),
	}
	switch {
	case out.PauseInterval <= 0:
		return Settings{}, fmt.Errorf("%s: must be positive", KeyPauseInterval)
	case out.LogMaxSize < 1:
		return Settings{}, fmt.Errorf("%s: must be at least 1", KeyLogMaxSize)
	case out.LogMaxFiles < 0:
		return Settings{}, fmt.Errorf("%s: must be at least 0", KeyLogMaxFiles)
	}
	switch out.LogFormat {
	case "auto", "text", "json":
	case "":
		out.LogFormat = "auto"
	default:
		return Settings{}, fmt.Errorf("%s: invalid log format: %s", KeyLogFormat, out.LogFormat)
	}
	return out, nil
}

// ParseLevel parses debug, info, warn or error (case-insensitive). The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}
