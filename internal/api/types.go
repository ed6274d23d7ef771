package api

import (
	"github.com/MJE43/coindle/internal/stats"
)

// APIError represents a structured error response with context
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidBody  = "invalid_body"
	ErrTypeInvalidScore = "invalid_score"
	ErrTypeInvalidDate  = "invalid_date"
	ErrTypeValidation   = "validation_error"

	// Integrity errors
	ErrTypeInvalidToken    = "invalid_token"
	ErrTypeDateOutOfWindow = "date_out_of_window"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryIntegrity  ErrorCategory = "integrity"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidBody, ErrTypeInvalidScore, ErrTypeInvalidDate, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeInvalidToken, ErrTypeDateOutOfWindow:
		return CategoryIntegrity
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains server version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/scores. Score is a pointer so a missing field is
// told apart from a score of zero.
type SubmitRequest struct {
	Score *int   `json:"score"`
	Date  string `json:"date"`
	Token string `json:"token"`
}

// SubmitResponse is the envelope returned for every submission, accepted or not.
type SubmitResponse struct {
	Success bool            `json:"success"`
	Stats   *stats.Snapshot `json:"stats,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details *APIError       `json:"details,omitempty"`
}
