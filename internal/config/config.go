// Package config loads UCLSE node configuration from the environment
// and per-node YAML profiles.
package config

import "os"

// Config holds one node process's runtime configuration.
type Config struct {
	Port              string
	LogLevel          string
	DatabaseURL       string
	NodeUID           string
	NodeType          string // "domain" | "enclave"
	DefaultWorkerPool string
	ProfilesDir       string
	Profile           string
}

// Load loads configuration from environment variables; an empty env
// var falls back to a development-friendly default rather than
// failing closed.
func Load() *Config {
	port := os.Getenv("UCLSE_PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("UCLSE_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("UCLSE_DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:uclse.db?cache=shared"
	}

	nodeUID := os.Getenv("UCLSE_NODE_UID")
	if nodeUID == "" {
		nodeUID = "local-node"
	}

	nodeType := os.Getenv("UCLSE_NODE_TYPE")
	if nodeType == "" {
		nodeType = "domain"
	}

	defaultPool := os.Getenv("UCLSE_DEFAULT_WORKER_POOL")
	if defaultPool == "" {
		defaultPool = "default-pool"
	}

	profilesDir := os.Getenv("UCLSE_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./profiles"
	}

	profile := os.Getenv("UCLSE_PROFILE")

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		DatabaseURL:       dbURL,
		NodeUID:           nodeUID,
		NodeType:          nodeType,
		DefaultWorkerPool: defaultPool,
		ProfilesDir:       profilesDir,
		Profile:           profile,
	}
}
