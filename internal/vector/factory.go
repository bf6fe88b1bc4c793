package vector

import (
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"go.uber.org/zap"
)

// NewBackends builds every backend named in cfg with its priority. Backends
// without the settings they need are still returned; NewOrchestrator drops them.
// local options apply to the local persistent backend.
func NewBackends(cfg config.VectorConfig, logger *zap.Logger, local ...LocalOption) []PrioritizedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []PrioritizedBackend
	out = append(out,
		PrioritizedBackend{
			Backend: NewQdrantBackend(QdrantConfig{
				Kind:       models.BackendManagedCloud,
				URL:        cfg.ManagedCloud.URL,
				APIKey:     cfg.ManagedCloud.APIKey,
				Collection: cfg.ManagedCloud.Collection,
			}, WithQdrantLogger(logger)),
			Priority: cfg.ManagedCloud.Priority,
		},
		PrioritizedBackend{
			Backend: NewQdrantBackend(QdrantConfig{
				Kind:       models.BackendSelfHostedRemote,
				URL:        cfg.SelfHosted.URL,
				APIKey:     cfg.SelfHosted.APIKey,
				Collection: cfg.SelfHosted.Collection,
			}, WithQdrantLogger(logger)),
			Priority: cfg.SelfHosted.Priority,
		},
	)
	if !cfg.Local.Disabled {
		out = append(out, PrioritizedBackend{
			Backend:  NewLocalBackend(cfg.Local.Path, append([]LocalOption{WithLocalLogger(logger)}, local...)...),
			Priority: cfg.Local.Priority,
		})
	}
	if !cfg.Memory.Disabled {
		out = append(out, PrioritizedBackend{Backend: NewMemoryBackend(), Priority: cfg.Memory.Priority})
	}
	return out
}

// NewFromConfig builds the orchestrator for cfg.
func NewFromConfig(cfg config.VectorConfig, logger *zap.Logger, local ...LocalOption) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewOrchestrator(NewBackends(cfg, logger, local...),
		WithBackendTimeout(cfg.Timeout),
		WithLogger(logger.Named("vector")))
}
