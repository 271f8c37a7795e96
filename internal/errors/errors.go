package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// APIError indicates Alpha Vantage returned an error payload or a bad response
	APIError ErrorCode = "API_ERROR"
	// RateLimited indicates the upstream call frequency limit was hit
	RateLimited ErrorCode = "RATE_LIMITED"
	// Timeout indicates the upstream request timed out
	Timeout ErrorCode = "TIMEOUT"
	// NoData indicates the upstream answered but had nothing for the request
	NoData ErrorCode = "NO_DATA"
	// InvalidParameter indicates a caller supplied a bad argument
	InvalidParameter ErrorCode = "INVALID_PARAMETER"
	// ConfigMissing indicates required configuration (the API key) is absent
	ConfigMissing ErrorCode = "CONFIG_MISSING"
	// UpstreamUnavailable indicates the upstream could not be reached
	UpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// SetEnv suggests setting an environment variable
	SetEnv FixActionType = "set-env"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Variable    string        `json:"variable,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// ServiceError is an error with a stable code, message, and suggestions
type ServiceError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a ServiceError with the fixes registered for its code
func New(code ErrorCode, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface.
// Only the message is returned so it can be embedded in user-facing payloads.
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// NewAPIError reports an error payload or malformed response from Alpha Vantage.
func NewAPIError(message string, cause error) *ServiceError {
	return New(APIError, message, cause)
}

// NewRateLimitError reports the upstream call frequency limit.
func NewRateLimitError(note string) *ServiceError {
	return New(RateLimited, "Rate limit reached: "+note, nil)
}

// NewTimeoutError reports an upstream timeout.
func NewTimeoutError(cause error) *ServiceError {
	return New(Timeout, "Request timed out", cause)
}

// NewNoDataError reports an empty upstream answer.
func NewNoDataError(message string) *ServiceError {
	return New(NoData, message, nil)
}

// NewInvalidParameterError reports a bad caller argument.
func NewInvalidParameterError(param, message string) *ServiceError {
	if message == "" {
		message = fmt.Sprintf("invalid parameter: %s", param)
	}
	return New(InvalidParameter, message, nil).WithDetails(map[string]string{"parameter": param})
}

// NewConfigMissingError reports a missing required setting.
func NewConfigMissingError(envVar string) *ServiceError {
	return New(ConfigMissing, envVar+" environment variable is required", nil)
}

// NewUpstreamError reports a transport failure reaching Alpha Vantage.
func NewUpstreamError(cause error) *ServiceError {
	return New(UpstreamUnavailable, fmt.Sprintf("Request failed: %v", cause), cause)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(operation string, cause error) *ServiceError {
	return New(InternalError, fmt.Sprintf("%s failed: %v", operation, cause), cause)
}

// CodeOf returns the code of the first ServiceError in err's chain,
// or InternalError if there is none.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return InternalError
}

// IsRateLimited reports whether err is an upstream rate limit.
func IsRateLimited(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se) && se.Code == RateLimited
}

// IsServiceError reports whether err carries a known code, as opposed to
// an unexpected failure.
func IsServiceError(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se) && se.Code != InternalError
}

// IsAPIError reports whether err came from the upstream API layer.
// Rate limits are a kind of API error.
func IsAPIError(err error) bool {
	code := CodeOf(err)
	return code == APIError || code == RateLimited
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ConfigMissing: {
		{
			Type:        SetEnv,
			Variable:    "ALPHA_VANTAGE_API_KEY",
			Description: "Set your Alpha Vantage API key",
			URL:         "https://www.alphavantage.co/support/#api-key",
		},
	},
	RateLimited: {
		{
			Type:        RunCommand,
			Command:     "sleep 60",
			Description: "Retry after the per-minute quota resets",
		},
	},
	UpstreamUnavailable: {
		{
			Type:        RunCommand,
			Command:     "avmcp config show",
			Description: "Check alphaVantage.baseUrl and network access",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
