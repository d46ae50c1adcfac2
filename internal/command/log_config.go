package command

import (
	"github.com/joeycumines/go-fest/internal/config"
)

// resolveLogSettings applies the logging flags over the resolved settings.
// Empty flags keep the configured values.
func resolveLogSettings(s config.Settings, flagLevel, flagFile, flagFormat string) (config.Settings, error) {
	if flagLevel != "" {
		level, err := config.ParseLevel(flagLevel)
		if err != nil {
			return s, err
		}
		s.LogLevel = level
	}
	if flagFile != "" {
		s.LogFile = flagFile
	}
	if flagFormat != "" {
		s.LogFormat = flagFormat
	}
	return s, nil
}
