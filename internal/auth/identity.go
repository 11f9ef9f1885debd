package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gokatarajesh/peerprep/internal/auth/jwt"
)

// Gateway headers carrying an identity that was verified upstream.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
)

var ErrMissingIdentity = errors.New("missing identity")

// Identity is the authenticated user attached to a connection.
type Identity struct {
	UserID string
	Email  string
}

// Identifier reads the upstream identity off an incoming request. With a
// validator it expects a session token; without one it trusts gateway headers.
type Identifier struct {
	validator *jwt.Validator
}

// NewIdentifier builds an Identifier. An empty secret selects header mode.
func NewIdentifier(secret string) *Identifier {
	if secret == "" {
		return &Identifier{}
	}
	return &Identifier{validator: jwt.NewValidator([]byte(secret))}
}

// FromRequest resolves the identity for r.
func (i *Identifier) FromRequest(r *http.Request) (Identity, error) {
	if i.validator == nil {
		id := Identity{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		}
		if id.UserID == "" {
			return Identity{}, ErrMissingIdentity
		}
		return id, nil
	}

	token := tokenFromRequest(r)
	if token == "" {
		return Identity{}, ErrMissingIdentity
	}
	claims, err := i.validator.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.ResolvedUserID(), Email: claims.Email}, nil
}

// tokenFromRequest prefers the query parameter since browsers cannot set
// headers on websocket upgrades.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
