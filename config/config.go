package config

import (
	"github.com/tetherproc/tether/internal/proc"
	"github.com/tetherproc/tether/internal/session"
	"github.com/tetherproc/tether/util/conf"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Proc is the child process configuration
	Proc proc.Config `conf:"proc"`

	// Session is the run session configuration
	Session session.Config `conf:"session"`
}

var DefaultConfig = buildDefaults()

func buildDefaults() conf.DefaultConfig {
	defaults := conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	}

	for key, val := range conf.MergeDefaults("proc", conf.DefaultConfig{
		"log_name": "child",
	}) {
		defaults[key] = val
	}

	return defaults
}
