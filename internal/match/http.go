package match

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/auth"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for matching state.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for matching endpoints. They expect
// auth.Middleware in front of them.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "match_http").Logger(),
	}
}

// StatusResponse describes where the caller stands in matchmaking.
type StatusResponse struct {
	UserID      string `json:"userId"`
	Queued      bool   `json:"queued"`
	Position    int    `json:"position"`
	ActiveRoom  string `json:"activeRoom,omitempty"`
	QueueLength int    `json:"queueLength"`
}

// Status handles GET /v1/matching/status.
func (h *HTTPHandlers) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Authentication required")
		return
	}

	position := h.service.Position(identity.UserID)
	roomID, _ := h.service.ActiveRoom(identity.UserID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StatusResponse{
		UserID:      identity.UserID,
		Queued:      position >= 0,
		Position:    position,
		ActiveRoom:  roomID,
		QueueLength: h.service.QueueLength(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode status response")
	}
}
