package server

import (
	"errors"
	"net/http"
	"strings"
)

// OwnerHeader carries the caller's owner id.
const OwnerHeader = "X-Owner-ID"

// ErrUnauthenticated is returned when an owner-only route is called anonymously.
var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityProvider resolves the owner of a request. An empty id means anonymous.
type IdentityProvider interface {
	OwnerID(r *http.Request) string
}

// HeaderIdentity reads the owner id from a request header. It performs no
// verification; put it behind something that does.
type HeaderIdentity struct {
	// Header defaults to OwnerHeader.
	Header string
}

func (h HeaderIdentity) OwnerID(r *http.Request) string {
	name := h.Header
	if name == "" {
		name = OwnerHeader
	}
	return strings.TrimSpace(r.Header.Get(name))
}

func (s *Server) requireOwner(r *http.Request) (string, error) {
	owner := s.identity.OwnerID(r)
	if owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}
