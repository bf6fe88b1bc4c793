package config

import (
	"fmt"
	"strconv"
)

// Environment variables that override the file.
const (
	EnvQdrantCloudURL    = "KIKU_QDRANT_CLOUD_URL"
	EnvQdrantCloudAPIKey = "KIKU_QDRANT_CLOUD_API_KEY"
	EnvQdrantURL         = "KIKU_QDRANT_URL"
	EnvOllamaURL         = "KIKU_OLLAMA_URL"
	EnvDebug             = "KIKU_DEBUG"
)

// ApplyEnv overrides cfg from environment variables read through getenv
// (os.Getenv in production). Unset or empty variables leave cfg alone.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvQdrantCloudURL); v != "" {
		cfg.Vector.ManagedCloud.URL = v
	}
	if v := getenv(EnvQdrantCloudAPIKey); v != "" {
		cfg.Vector.ManagedCloud.APIKey = v
	}
	if v := getenv(EnvQdrantURL); v != "" {
		cfg.Vector.SelfHosted.URL = v
	}
	if v := getenv(EnvOllamaURL); v != "" {
		cfg.Embedding.URL = v
		cfg.Generation.URL = v
	}
	if v := getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	return nil
}
