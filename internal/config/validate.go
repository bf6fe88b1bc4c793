package config

import (
	"errors"
	"fmt"
)

// Validate checks settings that would otherwise fail later at runtime.
// It reports every problem found, not only the first.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	switch c.Embedding.Provider {
	case ProviderHashing, ProviderOllama, ProviderONNX:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not one of hashing, ollama, onnx", c.Embedding.Provider))
	}
	if c.Embedding.Provider == ProviderONNX && c.Embedding.ModelPath == "" {
		errs = append(errs, errors.New("embedding.model_path is required for the onnx provider"))
	}
	switch c.Generation.Provider {
	case ProviderOllama, ProviderStatic:
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q is not one of ollama, static", c.Generation.Provider))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of sqlite, memory", c.Storage.Driver))
	}

	seen := map[int]string{}
	check := func(name string, enabled bool, priority int) {
		if !enabled {
			return
		}
		if other, ok := seen[priority]; ok {
			errs = append(errs, fmt.Errorf("vector.%s and vector.%s share priority %d", other, name, priority))
			return
		}
		seen[priority] = name
	}
	check("managed_cloud", c.Vector.ManagedCloud.URL != "", c.Vector.ManagedCloud.Priority)
	check("self_hosted", c.Vector.SelfHosted.URL != "", c.Vector.SelfHosted.Priority)
	check("local", !c.Vector.Local.Disabled, c.Vector.Local.Priority)
	check("memory", !c.Vector.Memory.Disabled, c.Vector.Memory.Priority)
	if len(seen) == 0 {
		errs = append(errs, errors.New("vector: every backend is disabled"))
	}
	return errors.Join(errs...)
}
