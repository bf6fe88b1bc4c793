package models

import "time"

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is user or assistant.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DefaultConversationTitle is used when a conversation has no user-set title.
const DefaultConversationTitle = "New conversation"

// ConversationTurn is one immutable message in a conversation.
type ConversationTurn struct {
	Role      Role      `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

// Conversation is an owner-scoped, append-only log of turns.
type Conversation struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`
	Title   string `json:"title" db:"title"`
	// CustomTitle is set once the owner has given the conversation a title.
	CustomTitle bool               `json:"custom_title" db:"custom_title"`
	Messages    []ConversationTurn `json:"messages"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// ConversationSummary is the list projection of a conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StampTurns returns copies of turns with strictly increasing timestamps
// starting after last: the i-th turn gets max(now, last+1ns) + i ns.
func StampTurns(turns []ConversationTurn, last, now time.Time) []ConversationTurn {
	base := now.Round(0)
	if next := last.Add(time.Nanosecond); !last.IsZero() && !base.After(last) {
		base = next
	}
	out := make([]ConversationTurn, len(turns))
	for i, t := range turns {
		t.Timestamp = base.Add(time.Duration(i))
		out[i] = t
	}
	return out
}
