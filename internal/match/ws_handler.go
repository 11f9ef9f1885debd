package match

import (
	"errors"
	"net/http"

	"github.com/gokatarajesh/peerprep/internal/auth"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
)

// HandleWebSocket resolves the caller's identity and upgrades to WebSocket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identifier.FromRequest(r)
	if err != nil {
		h.logger.Warn().Err(err).Msg("matching socket rejected: no identity")
		code := httperrors.ErrCodeInvalidToken
		if errors.Is(err, auth.ErrMissingIdentity) {
			code = httperrors.ErrCodeMissingToken
		}
		httperrors.RespondUnauthorized(w, code, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, identity)
}
