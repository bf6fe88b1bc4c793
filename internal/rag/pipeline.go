// Package rag answers questions by retrieving indexed chunks and passing them
// with the conversation to a language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/pkg/utils"
)

// Pipeline defaults.
const (
	DefaultTopK              = 4
	DefaultGenerationTimeout = 90 * time.Second
	snippetLength            = 200
	// NoAnswerContent is stored as the assistant turn when the model returns only whitespace.
	NoAnswerContent          = "(no answer)"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever finds the chunks nearest to a vector.
type Retriever interface {
	Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, models.BackendKind, error)
	// Populated reports whether anything was ever indexed.
	Populated(ctx context.Context) bool
}

// Conversations records answered questions for an owner.
type Conversations interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	AppendTurns(ctx context.Context, ownerID, id string, turns []models.ConversationTurn) (*models.Conversation, error)
}

// Pipeline runs one question at a time from embedding to answer. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	embedder      Embedder
	retriever     Retriever
	generator     llm.Generator
	conversations Conversations
	topK          int
	genTimeout    time.Duration
	logger        *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTopK sets how many chunks are retrieved.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithGenerationTimeout bounds the generation call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.genTimeout = d
		}
	}
}

// WithConversations enables persistence of answered questions.
func WithConversations(c Conversations) Option {
	return func(p *Pipeline) { p.conversations = c }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = utils.OrNop(l) }
}

// NewPipeline wires the capabilities a question needs.
func NewPipeline(embedder Embedder, retriever Retriever, generator llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder:   embedder,
		retriever:  retriever,
		generator:  generator,
		topK:       DefaultTopK,
		genTimeout: DefaultGenerationTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer retrieves context for req.Question, asks the generator, and, when
// the request has an owner, appends the exchange to the conversation.
// Persistence failures are logged and never fail the call.
func (p *Pipeline) Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vecs, err := p.embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one question", models.ErrEmbeddingFailed, len(vecs))
	}

	results, backend, err := p.retriever.Query(ctx, vecs[0], p.topK)
	if err != nil {
		if errors.Is(err, models.ErrAllBackendsUnavailable) && !p.retriever.Populated(ctx) {
			return nil, fmt.Errorf("%w: ingest a document first", models.ErrNoIndexAvailable)
		}
		return nil, err
	}

	prompt := BuildPrompt(req.Question, req.History, results)
	genCtx, cancel := context.WithTimeout(ctx, p.genTimeout)
	answer, err := p.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
	}

	resp := &models.AnswerResponse{
		Answer:         answer,
		ConversationID: req.ConversationID,
		Sources:        sources(results),
		Backend:        backend,
	}
	if req.OwnerID != "" && p.conversations != nil {
		resp.ConversationID = p.persist(ctx, req, answer)
	}
	resp.QueryTime = time.Since(start).Milliseconds()

	p.logger.Debug("question answered",
		zap.String("backend", string(backend)),
		zap.Int("chunks", len(results)),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}

// persist appends the exchange and returns the conversation id it went to,
// or the requested id when nothing could be written.
func (p *Pipeline) persist(ctx context.Context, req models.AnswerRequest, answer string) string {
	id := req.ConversationID
	if id == "" {
		conv, err := p.conversations.CreateConversation(ctx, req.OwnerID, "")
		if err != nil {
			p.logger.Warn("could not create conversation", zap.String("owner", req.OwnerID), zap.Error(err))
			return ""
		}
		id = conv.ID
	}
	if strings.TrimSpace(answer) == "" {
		answer = NoAnswerContent
	}
	turns := []models.ConversationTurn{
		{Role: models.RoleUser, Content: req.Question},
		{Role: models.RoleAssistant, Content: answer},
	}
	if _, err := p.conversations.AppendTurns(ctx, req.OwnerID, id, turns); err != nil {
		p.logger.Warn("could not save conversation turns",
			zap.String("owner", req.OwnerID), zap.String("conversation", id), zap.Error(err))
	}
	return id
}

func sources(results []models.RetrievalResult) []models.Source {
	out := make([]models.Source, len(results))
	for i, r := range results {
		out[i] = models.Source{
			ChunkID:       r.Chunk.ID,
			DocumentID:    r.Chunk.DocumentID,
			SequenceIndex: r.Chunk.SequenceIndex,
			Score:         r.Score,
			Snippet:       utils.Truncate(r.Chunk.Text, snippetLength),
		}
	}
	return out
}
