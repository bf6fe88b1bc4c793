package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kiku/internal/conversation"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

// migrationText is 2,500 characters. Only the middle window, which becomes
// chunk 1 at size 1000 and overlap 150, mentions migration and savannahs.
func migrationText() string {
	words := make([]string, 250)
	for i := range words {
		switch {
		case i >= 100 && i < 170 && i%2 == 0:
			words[i] = "migration"
		case i >= 100 && i < 170:
			words[i] = "savannahs"
		default:
			words[i] = fmt.Sprintf("filler%03d", i)
		}
	}
	return strings.Join(words, " ") + "."
}

type fixture struct {
	pipeline *Pipeline
	store    *vector.Orchestrator
	gateway  *embedding.Gateway
	gen      *llm.StaticGenerator
	convs    *conversation.Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := vector.NewOrchestrator([]vector.PrioritizedBackend{
		{Backend: vector.NewLocalBackend(t.TempDir() + "/chunks.kidx"), Priority: 30},
		{Backend: vector.NewMemoryBackend(), Priority: 40},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gateway := embedding.NewGateway(embedding.NewHashingEmbedder(512))
	gen := llm.NewStaticGenerator("They walk.")
	convs := conversation.NewService(storage.NewMemoryRepository())
	opts = append([]Option{WithConversations(convs)}, opts...)
	return &fixture{
		pipeline: NewPipeline(gateway, store, gen, opts...),
		store:    store,
		gateway:  gateway,
		gen:      gen,
		convs:    convs,
	}
}

func (f *fixture) index(t *testing.T, docID, text string) []models.DocumentChunk {
	t.Helper()
	chunks, err := indexer.Split(docID, text, 1000, 150)
	require.NoError(t, err)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := f.gateway.Embed(context.Background(), texts)
	require.NoError(t, err)
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	_, err = f.store.Upsert(context.Background(), chunks)
	require.NoError(t, err)
	return chunks
}

func TestAnswer_RetrievesChunkHoldingTheAnswer(t *testing.T) {
	f := newFixture(t)
	text := migrationText()
	require.Len(t, []rune(text), 2500)
	chunks := f.index(t, "doc:herds", text)
	require.Len(t, chunks, 3)

	resp, err := f.pipeline.Answer(context.Background(), models.AnswerRequest{
		Question: "How does the migration cross the savannahs?",
	})
	require.NoError(t, err)
	assert.Equal(t, "They walk.", resp.Answer)
	assert.Equal(t, models.BackendLocalPersistent, resp.Backend)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "doc:herds_1", resp.Sources[0].ChunkID)
	assert.Equal(t, 1, resp.Sources[0].SequenceIndex)
	assert.Len(t, resp.Sources, 3)
	assert.Empty(t, resp.ConversationID, "anonymous requests are not persisted")

	prompts := f.gen.Prompts()
	require.Len(t, prompts, 1)
	ctxStart := strings.Index(prompts[0], "Context:\n") + len("Context:\n")
	assert.True(t, strings.HasPrefix(prompts[0][ctxStart:], chunks[1].Text), "top chunk should lead the context")
}

func TestAnswer_NeverPopulated(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Answer(context.Background(), models.AnswerRequest{Question: "anything?"})
	assert.ErrorIs(t, err, models.ErrNoIndexAvailable)
	assert.Empty(t, f.gen.Prompts(), "generator must not run")
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Answer(context.Background(), models.AnswerRequest{Question: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAnswer_PersistsForOwner(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc:herds", migrationText())
	ctx := context.Background()

	resp, err := f.pipeline.Answer(ctx, models.AnswerRequest{Question: "Where do they go?", OwnerID: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConversationID)

	conv, err := f.convs.GetConversation(ctx, "alice", resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Where do they go?", conv.Messages[0].Content)
	assert.Equal(t, "They walk.", conv.Messages[1].Content)

	again, err := f.pipeline.Answer(ctx, models.AnswerRequest{
		Question:       "And then?",
		History:        conv.Messages,
		ConversationID: resp.ConversationID,
		OwnerID:        "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, again.ConversationID)
	conv, _ = f.convs.GetConversation(ctx, "alice", resp.ConversationID)
	assert.Len(t, conv.Messages, 4)
	assert.Contains(t, f.gen.Prompts()[1], "Conversation so far:\nuser: Where do they go?\nassistant: They walk.\n")
}

func TestAnswer_PersistenceFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc:herds", migrationText())

	resp, err := f.pipeline.Answer(context.Background(), models.AnswerRequest{
		Question:       "Where do they go?",
		ConversationID: "does-not-exist",
		OwnerID:        "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "They walk.", resp.Answer)
}

func TestAnswer_BlankAnswerStillPersisted(t *testing.T) {
	f := newFixture(t)
	f.index(t, "doc:herds", migrationText())
	ctx := context.Background()
	p := NewPipeline(f.gateway, f.store, llm.NewStaticGenerator(" \n"), WithConversations(f.convs))

	resp, err := p.Answer(ctx, models.AnswerRequest{Question: "Where do they go?", OwnerID: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConversationID)

	conv, err := f.convs.GetConversation(ctx, "alice", resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Where do they go?", conv.Messages[0].Content)
	assert.Equal(t, NoAnswerContent, conv.Messages[1].Content)
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", g.err
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnswer_GenerationFailures(t *testing.T) {
	base := newFixture(t)
	base.index(t, "doc:herds", migrationText())

	failing := NewPipeline(base.gateway, base.store, failingGenerator{err: errors.New("model crashed")})
	_, err := failing.Answer(context.Background(), models.AnswerRequest{Question: "q?"})
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	slow := NewPipeline(base.gateway, base.store, slowGenerator{}, WithGenerationTimeout(10*time.Millisecond))
	_, err = slow.Answer(context.Background(), models.AnswerRequest{Question: "q?"})
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(failingEmbedder{}, f.store, f.gen)
	_, err := p.Answer(context.Background(), models.AnswerRequest{Question: "q?"})
	assert.ErrorIs(t, err, models.ErrEmbeddingFailed)
}

type downRetriever struct{ populated bool }

func (r downRetriever) Query(ctx context.Context, vec []float32, k int) ([]models.RetrievalResult, models.BackendKind, error) {
	return nil, "", &vector.FallbackError{Op: "query"}
}

func (r downRetriever) Populated(ctx context.Context) bool { return r.populated }

func TestAnswer_AllBackendsDownAfterIndexing(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.gateway, downRetriever{populated: true}, f.gen)
	_, err := p.Answer(context.Background(), models.AnswerRequest{Question: "q?"})
	assert.ErrorIs(t, err, models.ErrAllBackendsUnavailable)
	assert.False(t, errors.Is(err, models.ErrNoIndexAvailable))
}
