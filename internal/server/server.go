// Package server provides the HTTP API for kiku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
)

// Answerer answers questions over the indexed documents.
type Answerer interface {
	Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResponse, error)
}

// Ingester indexes uploaded documents.
type Ingester interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error)
}

// Conversations is the owner-scoped conversation API.
type Conversations interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, ownerID, id string) (*models.Conversation, error)
	AppendTurns(ctx context.Context, ownerID, id string, turns []models.ConversationTurn) (*models.Conversation, error)
	RenameConversation(ctx context.Context, ownerID, id, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, ownerID, id string) error
}

// BackendReporter describes the vector backends for the status endpoint.
type BackendReporter interface {
	Descriptors(ctx context.Context) []models.BackendDescriptor
	Populated(ctx context.Context) bool
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the kiku API.
type Server struct {
	answerer      Answerer
	ingester      Ingester
	conversations Conversations
	backends      BackendReporter
	identity      IdentityProvider
	watch         WatchService
	configPath    string
	logger        *zap.Logger

	configMu sync.Mutex
	config   *config.Config

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithIdentity replaces the default X-Owner-ID header identity.
func WithIdentity(p IdentityProvider) Option {
	return func(s *Server) {
		if p != nil {
			s.identity = p
		}
	}
}

// WithWatch enables the watch directory routes. When configPath is set,
// directory changes are saved back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	answerer Answerer,
	ingester Ingester,
	conversations Conversations,
	backends BackendReporter,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		answerer:      answerer,
		ingester:      ingester,
		conversations: conversations,
		backends:      backends,
		identity:      HeaderIdentity{},
		config:        cfg,
		logger:        logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/documents", s.handleIngestDocument)
		r.Post("/ask", s.handleAsk)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Post("/", s.handleCreateConversation)
			r.Get("/{id}", s.handleGetConversation)
			r.Patch("/{id}", s.handleRenameConversation)
			r.Delete("/{id}", s.handleDeleteConversation)
			r.Post("/{id}/messages", s.handleAppendMessages)
		})

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
