package app

import (
	"strings"

	"github.com/unforkableco/fabrikator/pkg/logger"
)

// ConfigureLogging initialises the global logger from configuration.
func ConfigureLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}
