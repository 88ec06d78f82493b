// Package config provides configuration helpers for voicelive commands.
package config

import (
	"fmt"
	"os"
)

// Default service configuration.
const (
	DefaultDashboardPort = "8090"
	DefaultLogLevel      = "info"
)

// Env returns the value of an environment variable, or the provided
// default if it is not set.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvRequired returns the value of an environment variable.
// Exits with a usage message if not set.
func EnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", key)
		fmt.Fprintf(os.Stderr, "Usage: %s=... go run ./cmd/voicelive\n", key)
		os.Exit(1)
	}
	return v
}

// APIKey returns the live endpoint API key from LIVE_API_KEY.
// Exits if not set.
func APIKey() string {
	return EnvRequired("LIVE_API_KEY")
}

// DashboardPort returns the dashboard listen port from DASHBOARD_PORT or default.
func DashboardPort() string {
	return Env("DASHBOARD_PORT", DefaultDashboardPort)
}

// LogLevel returns the log level from LOG_LEVEL or default.
func LogLevel() string {
	return Env("LOG_LEVEL", DefaultLogLevel)
}
