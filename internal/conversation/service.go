package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/pkg/utils"
)

// PreviewLength is the number of characters of the first message shown in a list.
const PreviewLength = 60

// Service validates conversation operations and delegates storage to a Repository.
type Service struct {
	repo   Repository
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.OrNop(l) }
}

// NewService returns a service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	return nil
}

// CreateConversation starts an empty conversation. An empty title uses the placeholder.
func (s *Service) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	now := s.now().Round(0)
	title = strings.TrimSpace(title)
	conv := &models.Conversation{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Title:       title,
		CustomTitle: title != "",
		Messages:    []models.ConversationTurn{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !conv.CustomTitle {
		conv.Title = models.DefaultConversationTitle
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("conversation created", zap.String("id", conv.ID), zap.String("owner", ownerID))
	return conv, nil
}

// ListConversations returns the owner's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	convs, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]models.ConversationSummary, len(convs))
	for i, c := range convs {
		out[i] = models.ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			Preview:   Preview(&c),
			UpdatedAt: c.UpdatedAt,
		}
	}
	return out, nil
}

// Preview is the user-set title, else the start of the first message, else empty.
func Preview(c *models.Conversation) string {
	if c.CustomTitle {
		return c.Title
	}
	if len(c.Messages) > 0 {
		return utils.Prefix(c.Messages[0].Content, PreviewLength)
	}
	return ""
}

// GetConversation returns the conversation with every turn.
func (s *Service) GetConversation(ctx context.Context, ownerID, id string) (*models.Conversation, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ownerID, id)
}

// AppendTurns adds turns atomically, in order, and returns the updated conversation.
func (s *Service) AppendTurns(ctx context.Context, ownerID, id string, turns []models.ConversationTurn) (*models.Conversation, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: no turns to append", models.ErrInvalidInput)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("%w: turn %d has invalid role %q", models.ErrInvalidInput, i, t.Role)
		}
		if strings.TrimSpace(t.Content) == "" {
			return nil, fmt.Errorf("%w: turn %d is empty", models.ErrInvalidInput, i)
		}
	}
	if _, err := s.repo.Append(ctx, ownerID, id, turns, s.now()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ownerID, id)
}

// RenameConversation sets the title and returns the updated conversation.
// An empty title restores the placeholder.
func (s *Service) RenameConversation(ctx context.Context, ownerID, id, title string) (*models.Conversation, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	custom := title != ""
	if !custom {
		title = models.DefaultConversationTitle
	}
	if err := s.repo.Rename(ctx, ownerID, id, title, custom, s.now().Round(0)); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ownerID, id)
}

// DeleteConversation removes a conversation. Deleting a missing one succeeds.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, ownerID, id)
}

// Close closes the repository.
func (s *Service) Close() error {
	return s.repo.Close()
}
