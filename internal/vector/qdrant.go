package vector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "kiku_chunks"

	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadSequence   = "sequence_index"
	payloadText       = "text"
)

// pointNamespace derives stable Qdrant point ids from chunk ids.
var pointNamespace = uuid.MustParse("6f1c7c52-3a5e-4f0e-9d8e-1b6a2f0c9e44")

// QdrantConfig configures a Qdrant backend. URL is a gRPC endpoint such as
// "https://xyz.cloud.qdrant.io:6334" or "localhost:6334"; an https scheme turns TLS on.
type QdrantConfig struct {
	Kind       models.BackendKind
	URL        string
	APIKey     string
	Collection string
}

// QdrantBackend stores chunks in a Qdrant collection over gRPC. It serves both
// the managed cloud kind (API key required) and the self-hosted kind.
type QdrantBackend struct {
	cfg    QdrantConfig
	logger *zap.Logger

	mu      sync.Mutex
	client  *qdrant.Client
	ensured bool
}

// QdrantOption configures a QdrantBackend.
type QdrantOption func(*QdrantBackend)

// WithQdrantLogger sets a logger.
func WithQdrantLogger(l *zap.Logger) QdrantOption {
	return func(b *QdrantBackend) { b.logger = l }
}

// NewQdrantBackend returns a backend for cfg. No connection is made until first use.
func NewQdrantBackend(cfg QdrantConfig, opts ...QdrantOption) *QdrantBackend {
	if cfg.Collection == "" {
		cfg.Collection = defaultQdrantCollection
	}
	b := &QdrantBackend{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *QdrantBackend) Kind() models.BackendKind { return b.cfg.Kind }

// IsConfigured requires a URL, plus an API key for the managed cloud kind.
func (b *QdrantBackend) IsConfigured() bool {
	if b.cfg.URL == "" {
		return false
	}
	if b.cfg.Kind == models.BackendManagedCloud {
		return b.cfg.APIKey != ""
	}
	return true
}

// parseQdrantURL splits a Qdrant URL into host, port and TLS setting.
func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// bare host[:port]
		u, err = url.Parse("grpc://" + raw)
		if err != nil {
			return "", 0, false, fmt.Errorf("parse qdrant url %q: %w", raw, err)
		}
	}
	useTLS = u.Scheme == "https" || u.Scheme == "grpcs"
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("parse qdrant url %q: missing host", raw)
	}
	port = defaultQdrantPort
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false, fmt.Errorf("parse qdrant url %q: bad port: %w", raw, err)
		}
	}
	return host, port, useTLS, nil
}

func (b *QdrantBackend) conn() (*qdrant.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	host, port, useTLS, err := parseQdrantURL(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 b.cfg.APIKey,
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect qdrant %s: %w", models.ErrBackendUnavailable, net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	b.client = client
	return client, nil
}

// ensureCollection creates the collection on first upsert.
func (b *QdrantBackend) ensureCollection(ctx context.Context, client *qdrant.Client, dims int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}
	exists, err := client.CollectionExists(ctx, b.cfg.Collection)
	if err != nil {
		return classifyQdrantError("check collection", err, false)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: b.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return classifyQdrantError("create collection", err, false)
		}
		b.logger.Info("qdrant collection created",
			zap.String("kind", string(b.cfg.Kind)), zap.String("collection", b.cfg.Collection), zap.Int("dimensions", dims))
	}
	b.ensured = true
	return nil
}

// Upsert writes chunks as points keyed by a UUID derived from the chunk id.
func (b *QdrantBackend) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	client, err := b.conn()
	if err != nil {
		return err
	}
	if err := b.ensureCollection(ctx, client, len(chunks[0].Embedding)); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, ch := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(ch.ID)),
			Vectors: qdrant.NewVectors(ch.Embedding...),
			Payload: chunkPayload(ch),
		}
	}
	_, err = client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return classifyQdrantError("upsert", err, false)
	}
	return nil
}

// Query searches the collection. A missing or empty collection is models.ErrIndexEmpty.
func (b *QdrantBackend) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, error) {
	client, err := b.conn()
	if err != nil {
		return nil, err
	}
	points, err := client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classifyQdrantError("query", err, true)
	}
	if len(points) == 0 {
		return nil, models.ErrIndexEmpty
	}
	results := make([]models.RetrievalResult, len(points))
	for i, p := range points {
		results[i] = models.RetrievalResult{
			Chunk: payloadChunk(p.GetPayload()),
			Score: float64(p.GetScore()),
		}
	}
	return rankResults(results, k), nil
}

// Size counts points in the collection; a missing collection counts as zero.
func (b *QdrantBackend) Size(ctx context.Context) (int, error) {
	client, err := b.conn()
	if err != nil {
		return 0, err
	}
	n, err := client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, classifyQdrantError("count", err, false)
	}
	return int(n), nil
}

// Close closes the gRPC connection if one was opened.
func (b *QdrantBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

// PointID returns the Qdrant point id for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func chunkPayload(ch models.DocumentChunk) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		payloadChunkID:    ch.ID,
		payloadDocumentID: ch.DocumentID,
		payloadSequence:   int64(ch.SequenceIndex),
		payloadText:       ch.Text,
	})
}

func payloadChunk(p map[string]*qdrant.Value) models.DocumentChunk {
	return models.DocumentChunk{
		ID:            p[payloadChunkID].GetStringValue(),
		DocumentID:    p[payloadDocumentID].GetStringValue(),
		SequenceIndex: int(p[payloadSequence].GetIntegerValue()),
		Text:          p[payloadText].GetStringValue(),
	}
}

// classifyQdrantError maps gRPC failures onto the backend error taxonomy.
func classifyQdrantError(op string, err error, query bool) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	switch status.Code(err) {
	case codes.DataLoss:
		return fmt.Errorf("%w: qdrant %s: %w", models.ErrIndexCorrupt, op, err)
	case codes.NotFound:
		if query {
			return fmt.Errorf("%w: qdrant %s: %w", models.ErrIndexEmpty, op, err)
		}
		return fmt.Errorf("%w: qdrant %s: %w", models.ErrBackendUnavailable, op, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		// the request itself is wrong; another backend would not help
		return fmt.Errorf("qdrant %s: %w", op, err)
	default:
		// Unavailable, DeadlineExceeded, ResourceExhausted, Aborted, Unauthenticated,
		// PermissionDenied, Internal, Unknown, and plain transport errors.
		return fmt.Errorf("%w: qdrant %s: %w", models.ErrBackendUnavailable, op, err)
	}
}
