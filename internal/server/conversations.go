package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
)

type titleRequest struct {
	Title string `json:"title"`
}

type appendRequest struct {
	Messages []models.ConversationTurn `json:"messages"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "list conversations", err)
		return
	}
	list, err := s.conversations.ListConversations(r.Context(), owner)
	if err != nil {
		s.respondErr(w, r, "list conversations", err)
		return
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": list})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "create conversation", err)
		return
	}
	var req titleRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.respondErr(w, r, "create conversation", err)
		return
	}
	conv, err := s.conversations.CreateConversation(r.Context(), owner, req.Title)
	if err != nil {
		s.respondErr(w, r, "create conversation", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "get conversation", err)
		return
	}
	conv, err := s.conversations.GetConversation(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, "get conversation", err)
		return
	}
	s.respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "rename conversation", err)
		return
	}
	var req titleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondErr(w, r, "rename conversation", err)
		return
	}
	conv, err := s.conversations.RenameConversation(r.Context(), owner, chi.URLParam(r, "id"), req.Title)
	if err != nil {
		s.respondErr(w, r, "rename conversation", err)
		return
	}
	s.respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "delete conversation", err)
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete conversation request", zap.String("id", id))
	if err := s.conversations.DeleteConversation(r.Context(), owner, id); err != nil {
		s.respondErr(w, r, "delete conversation", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleAppendMessages(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r)
	if err != nil {
		s.respondErr(w, r, "append messages", err)
		return
	}
	var req appendRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondErr(w, r, "append messages", err)
		return
	}
	conv, err := s.conversations.AppendTurns(r.Context(), owner, chi.URLParam(r, "id"), req.Messages)
	if err != nil {
		s.respondErr(w, r, "append messages", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, conv)
}
