package auth

// Error codes reported by Authenticate.
const (
	ErrCodeMissingToken = "missing_token"
	ErrCodeInvalidToken = "invalid_token"
)
