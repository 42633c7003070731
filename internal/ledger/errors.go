package ledger

import "fmt"

// APIError is an error returned by the ledger node in a well-formed
// response envelope.
type APIError struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger: %s: %s", e.ErrorType, e.Message)
}

// Error types the ledger node reports.
const (
	ErrTypeInsufficientFunds = "insufficientFunds"
	ErrTypeRunNotFound       = "runNotFound"
	ErrTypeRunAlreadyClosed  = "runAlreadyClosed"
	ErrTypeCongested         = "congested"
)

// IsInsufficientFunds reports whether the wallet could not cover the entry fee.
func (e *APIError) IsInsufficientFunds() bool { return e.ErrorType == ErrTypeInsufficientFunds }

// IsRunNotFound reports whether the run record does not exist.
func (e *APIError) IsRunNotFound() bool { return e.ErrorType == ErrTypeRunNotFound }

// IsRunAlreadyClosed reports whether the run record was already closed.
// A duplicate close is treated as success by callers that retry.
func (e *APIError) IsRunAlreadyClosed() bool { return e.ErrorType == ErrTypeRunAlreadyClosed }

// IsRetryable reports whether resubmitting the same transaction can succeed.
func (e *APIError) IsRetryable() bool { return e.ErrorType == ErrTypeCongested }

// HTTPError is a non-200 response from the ledger node.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ledger: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status indicates a transient condition.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AuthError indicates the wallet token was rejected.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ledger: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}
