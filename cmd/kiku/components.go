package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/conversation"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/rag"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Gateway       *embedding.Gateway
	Vectors       *vector.Orchestrator
	Conversations *conversation.Service
	Pipeline      *rag.Pipeline
	Indexer       *indexer.Indexer
}

func (c *Components) Close() {
	if c.Conversations != nil {
		_ = c.Conversations.Close()
	}
	if c.Gateway != nil {
		_ = c.Gateway.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	embedder, err := newEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Gateway = embedding.NewGateway(embedder,
		embedding.WithCache(embedding.NewEmbeddingCache(cfg.Embedding.CacheSize)),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithLogger(logger.Named("embedding")),
	)

	c.Vectors, err = vector.NewFromConfig(cfg.Vector, logger, vector.WithLocalDimensions(c.Gateway.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Info("vector backends initialized", zap.Any("kinds", c.Vectors.Kinds()))

	repo, err := newRepository(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conversation storage: %w", err)
	}
	c.Conversations = conversation.NewService(repo, conversation.WithLogger(logger.Named("conversation")))

	generator, err := newGenerator(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	c.Pipeline = rag.NewPipeline(c.Gateway, c.Vectors, generator,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithGenerationTimeout(cfg.Generation.Timeout),
		rag.WithConversations(c.Conversations),
		rag.WithLogger(logger.Named("rag")),
	)

	chunker, err := indexer.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	c.Indexer = indexer.NewIndexer(c.Gateway, c.Vectors, chunker, indexer.WithLogger(logger.Named("indexer")))

	ok = true
	return c, nil
}

func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:    cfg.URL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		}), nil
	case config.ProviderONNX:
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("onnx embedder loaded", zap.String("model_path", cfg.ModelPath))
		return e, nil
	default:
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	}
}

func newGenerator(cfg config.GenerationConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return llm.NewOllamaGenerator(llm.OllamaConfig{
			BaseURL:     cfg.URL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	case config.ProviderStatic:
		return llm.NewStaticGenerator(cfg.StaticAnswer), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func newRepository(cfg config.StorageConfig) (conversation.Repository, error) {
	if cfg.Driver == config.DriverMemory {
		return storage.NewMemoryRepository(), nil
	}
	return storage.NewSQLiteRepository(cfg.DatabasePath)
}
