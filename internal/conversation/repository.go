// Package conversation keeps owner-scoped, append-only conversation logs.
package conversation

import (
	"context"
	"time"

	"github.com/hyperjump/kiku/internal/models"
)

// Repository persists conversations. Every call is scoped to an owner; a
// conversation that exists under another owner is reported as
// models.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	// Get returns the conversation with all turns in order.
	Get(ctx context.Context, ownerID, id string) (*models.Conversation, error)
	// List returns the owner's conversations ordered by UpdatedAt descending,
	// ties by id. Messages holds at most the first turn.
	List(ctx context.Context, ownerID string) ([]models.Conversation, error)
	// Append stamps turns with models.StampTurns against the last stored turn
	// and writes them and the new UpdatedAt in one transaction.
	Append(ctx context.Context, ownerID, id string, turns []models.ConversationTurn, now time.Time) ([]models.ConversationTurn, error)
	Rename(ctx context.Context, ownerID, id, title string, custom bool, now time.Time) error
	// Delete succeeds when the conversation does not exist.
	Delete(ctx context.Context, ownerID, id string) error
	Close() error
}
