package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kiku/internal/models"
)

// MemoryRepository keeps conversations in process memory. Used by tests and
// by the server when no database is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{convs: make(map[string]*models.Conversation)}
}

func cloneConversation(c *models.Conversation, messages int) models.Conversation {
	out := *c
	if messages > len(c.Messages) {
		messages = len(c.Messages)
	}
	out.Messages = append([]models.ConversationTurn{}, c.Messages[:messages]...)
	return out
}

// lookup must be called with mu held.
func (r *MemoryRepository) lookup(ownerID, id string) (*models.Conversation, error) {
	c, ok := r.convs[id]
	if !ok || c.OwnerID != ownerID {
		return nil, notFound(id)
	}
	return c, nil
}

// Create stores a copy of conv.
func (r *MemoryRepository) Create(ctx context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := cloneConversation(conv, len(conv.Messages))
	r.convs[conv.ID] = &c
	return nil
}

// Get returns a copy of the conversation.
func (r *MemoryRepository) Get(ctx context.Context, ownerID, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	out := cloneConversation(c, len(c.Messages))
	return &out, nil
}

// List returns the owner's conversations, each with at most its first message.
func (r *MemoryRepository) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Conversation{}
	for _, c := range r.convs {
		if c.OwnerID == ownerID {
			out = append(out, cloneConversation(c, 1))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Append stamps and stores turns under the write lock.
func (r *MemoryRepository) Append(ctx context.Context, ownerID, id string, turns []models.ConversationTurn, now time.Time) ([]models.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	var last time.Time
	if n := len(c.Messages); n > 0 {
		last = c.Messages[n-1].Timestamp
	}
	stamped := models.StampTurns(turns, last, now)
	c.Messages = append(c.Messages, stamped...)
	c.UpdatedAt = stamped[len(stamped)-1].Timestamp
	return append([]models.ConversationTurn(nil), stamped...), nil
}

// Rename sets the title; UpdatedAt never moves backwards.
func (r *MemoryRepository) Rename(ctx context.Context, ownerID, id, title string, custom bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(ownerID, id)
	if err != nil {
		return err
	}
	c.Title = title
	c.CustomTitle = custom
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
	return nil
}

// Delete removes the conversation if the owner matches.
func (r *MemoryRepository) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok && c.OwnerID == ownerID {
		delete(r.convs, id)
	}
	return nil
}

// Close is a no-op.
func (r *MemoryRepository) Close() error {
	return nil
}
