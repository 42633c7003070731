package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aventurer-games/dungeon-core-go/internal/leaderboard"
	"github.com/aventurer-games/dungeon-core-go/internal/run"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final GameError
func (eb *ErrorBuilder) Build() GameError {
	return GameError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// classify maps domain errors to an error type and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, run.ErrInvalidTransition):
		return ErrTypeInvalidTransition, http.StatusConflict
	case errors.Is(err, run.ErrBusy):
		return ErrTypeSessionBusy, http.StatusConflict
	case errors.Is(err, leaderboard.ErrLedgerUnavailable):
		return ErrTypeLedgerUnavailable, http.StatusBadGateway
	default:
		return ErrTypeInternal, http.StatusInternalServerError
	}
}

// HandleError processes an error and writes the appropriate HTTP response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	errType, status := classify(err)
	gameErr := NewError(errType, err.Error()).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, gameErr, status)
	eh.writeErrorResponse(w, status, gameErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	gameErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, gameErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, gameErr)
}

// HandleNotFound writes a session-not-found response
func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, id string) {
	requestID := middleware.GetReqID(r.Context())

	gameErr := NewError(ErrTypeSessionNotFound, "session not found").
		WithRequestID(requestID).
		WithContext("session_id", id).
		Build()

	eh.logError(r, gameErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, gameErr)
}

func (eh *ErrorHandler) logError(r *http.Request, gameErr GameError, status int) {
	level := "ERROR"
	if status < 500 {
		level = "WARN"
	}
	eh.logger.Printf(
		"error_occurred level=%s type=%s status=%d request_id=%s method=%s path=%s message=%q",
		level, gameErr.Type, status, gameErr.RequestID, r.Method, r.URL.Path, gameErr.Message,
	)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, gameErr GameError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", APIVersion)
	w.Header().Set("X-Error-Type", gameErr.Type)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(gameErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				gameErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, gameErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
