package config

import (
	"time"

	"github.com/hyperjump/kiku/internal/models"
)

// Embedding and generation providers.
const (
	ProviderHashing = "hashing"
	ProviderOllama  = "ollama"
	ProviderONNX    = "onnx"
	ProviderStatic  = "static"

	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".kiku/data/conversations.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHashing
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider != ProviderOllama {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = ProviderOllama
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 90 * time.Second
	}
	if cfg.Vector.ManagedCloud.Priority == 0 {
		cfg.Vector.ManagedCloud.Priority = models.BackendManagedCloud.DefaultPriority()
	}
	if cfg.Vector.SelfHosted.Priority == 0 {
		cfg.Vector.SelfHosted.Priority = models.BackendSelfHostedRemote.DefaultPriority()
	}
	if cfg.Vector.Local.Priority == 0 {
		cfg.Vector.Local.Priority = models.BackendLocalPersistent.DefaultPriority()
	}
	if cfg.Vector.Local.Path == "" {
		cfg.Vector.Local.Path = ".kiku/data/index/chunks.kidx"
	}
	if cfg.Vector.Memory.Priority == 0 {
		cfg.Vector.Memory.Priority = models.BackendInMemoryEphemeral.DefaultPriority()
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 10 * time.Second
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 150
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 2 * time.Minute
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
