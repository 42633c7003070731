package api

import "fmt"

// APIVersion identifies the HTTP surface for response headers.
const APIVersion = "1.0.0"

// GameError represents a structured error response with context
type GameError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func (e GameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Error type constants
const (
	ErrTypeValidation        = "validation_error"
	ErrTypeInvalidParams     = "invalid_params"
	ErrTypeSessionNotFound   = "session_not_found"
	ErrTypeInvalidTransition = "invalid_transition"
	ErrTypeSessionBusy       = "session_busy"
	ErrTypeLedgerUnavailable = "ledger_unavailable"
	ErrTypeInternal          = "internal_error"
)
