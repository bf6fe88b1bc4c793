// Package config provides configuration loading and structs for the kiku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Vector     VectorConfig     `yaml:"vector"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig selects where conversations are kept.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and tunes the embedding capability.
type EmbeddingConfig struct {
	// Provider is "hashing", "ollama" or "onnx".
	Provider    string        `yaml:"provider"`
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	ModelPath   string        `yaml:"model_path"`
	LibraryPath string        `yaml:"library_path"`
	Dimensions  int           `yaml:"dimensions"`
	MaxTokens   int           `yaml:"max_tokens"`
	CacheSize   int           `yaml:"cache_size"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// GenerationConfig selects the language model.
type GenerationConfig struct {
	// Provider is "ollama" or "static".
	Provider    string        `yaml:"provider"`
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// StaticAnswer is returned by the static provider.
	StaticAnswer string `yaml:"static_answer"`
}

// VectorConfig lists the vector backends. Lower priority is tried first.
type VectorConfig struct {
	ManagedCloud QdrantConfig      `yaml:"managed_cloud"`
	SelfHosted   QdrantConfig      `yaml:"self_hosted"`
	Local        LocalIndexConfig  `yaml:"local"`
	Memory       MemoryIndexConfig `yaml:"memory"`
	// Timeout bounds one operation on one backend.
	Timeout time.Duration `yaml:"timeout"`
}

// QdrantConfig configures a Qdrant backend. An empty URL leaves it unconfigured.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Priority   int    `yaml:"priority"`
}

// LocalIndexConfig configures the file-backed index.
type LocalIndexConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority"`
}

// MemoryIndexConfig configures the in-process index.
type MemoryIndexConfig struct {
	Disabled bool `yaml:"disabled"`
	Priority int  `yaml:"priority"`
}

// ChunkingConfig holds chunk size and overlap, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds query settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// Timeout bounds one answer, from embedding the question to generation.
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and parses the config file at path, applies defaults, then
// expands paths. Environment overrides are applied separately by ApplyEnv.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// Default returns the configuration used when no file exists. Relative
// paths resolve against the home directory.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.expandPaths("")
	return &cfg
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Vector.Local.Path = expandPath(c.Vector.Local.Path, configDir)
	if c.Embedding.ModelPath != "" {
		c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	}
	for i := range c.Watch.Directories {
		c.Watch.Directories[i] = expandPath(c.Watch.Directories[i], configDir)
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		if configDir == "" {
			configDir, _ = os.Getwd()
		}
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Summary returns the settings reported by status.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"embedding_provider":   c.Embedding.Provider,
		"embedding_dimensions": c.Embedding.Dimensions,
		"generation_provider":  c.Generation.Provider,
		"chunk_size":           c.Chunking.Size,
		"chunk_overlap":        c.Chunking.Overlap,
		"top_k":                c.Retrieval.TopK,
		"storage_driver":       c.Storage.Driver,
	}
}
