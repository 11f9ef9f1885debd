package errors

// Error codes for standardized error responses.
const (
	// Identity errors
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeMissingToken = "missing_token"

	// Validation errors
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeInvalidPayload  = "invalid_payload"
	ErrCodeInvalidCriteria = "invalid_criteria"
	ErrCodeMissingRoomID   = "missing_room_id"
	ErrCodeUserMismatch    = "user_mismatch"

	// Conflict errors
	ErrCodeAlreadyQueued    = "already_queued"
	ErrCodeAlreadyInSession = "already_in_session"
	ErrCodeNotInRoom        = "not_in_room"

	// WebSocket errors
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeOriginNotAllowed   = "origin_not_allowed"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
