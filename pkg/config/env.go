package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsProductionLike reports whether env enforces production configuration.
func IsProductionLike(env string) bool {
	switch strings.ToLower(env) {
	case EnvStaging, EnvProduction:
		return true
	}
	return false
}
