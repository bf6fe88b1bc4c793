package models

import (
	"fmt"
	"strings"
)

// AnswerRequest is a question with its conversational context.
type AnswerRequest struct {
	Question       string             `json:"question"`
	History        []ConversationTurn `json:"history,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	// OwnerID is resolved by the identity provider, never read from the body.
	OwnerID string `json:"-"`
}

// Validate trims the question and rejects empty ones.
func (r *AnswerRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	for i, turn := range r.History {
		if !turn.Role.Valid() {
			return fmt.Errorf("%w: history[%d] has invalid role %q", ErrInvalidInput, i, turn.Role)
		}
	}
	return nil
}

// AnswerResponse is the result of a question.
type AnswerResponse struct {
	Answer         string      `json:"answer"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Sources        []Source    `json:"sources"`
	Backend        BackendKind `json:"backend"`
	QueryTime      int64       `json:"query_time_ms"`
}
