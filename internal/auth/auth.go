package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no resolvable
// identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity resolves an inbound request to an opaque user identifier. The real
// identity provider lives outside this service; this interface is the seam.
type Identity interface {
	Resolve(r *http.Request) (string, error)
}

// StaticTokens maps bearer tokens to user ids. It stands in for the hosted
// auth provider in development and tests.
type StaticTokens struct {
	tokens map[string]string
}

var _ Identity = (*StaticTokens)(nil)

func NewStaticTokens(tokens map[string]string) *StaticTokens {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticTokens{tokens: copied}
}

// Resolve accepts either an Authorization bearer header or an access_token
// query parameter; the latter exists because the browser EventSource API
// cannot set headers.
func (s *StaticTokens) Resolve(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if q := r.URL.Query().Get("access_token"); q != "" {
		token = q
	}
	if token == "" {
		return "", ErrUnauthenticated
	}

	userID, ok := s.tokens[token]
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
