package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
)

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Middleware resolves the caller's identity, injects it into the request
// context and rejects requests that carry none.
func Middleware(identifier *Identifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identifier.FromRequest(r)
			if err != nil {
				if errors.Is(err, ErrMissingIdentity) {
					httperrors.RespondUnauthorized(w, httperrors.ErrCodeMissingToken, "Authentication required")
					return
				}
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
