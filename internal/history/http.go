package history

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/auth"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
)

type recordLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}

// HTTPHandler serves a user's past sessions.
type HTTPHandler struct {
	store  recordLister
	logger zerolog.Logger
}

// NewHTTPHandler expects to sit behind auth.Middleware.
func NewHTTPHandler(store recordLister, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		store:  store,
		logger: logger.With().Str("component", "history_http").Logger(),
	}
}

type listResponse struct {
	Records []Record `json:"records"`
}

// HandleList handles GET /v1/history?limit=N for the calling user.
func (h *HTTPHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Authentication required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.store.ListByUser(r.Context(), identity.UserID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", identity.UserID).Msg("failed to list history")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeInternalError, "Could not load history")
		return
	}
	if records == nil {
		records = []Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listResponse{Records: records})
}
