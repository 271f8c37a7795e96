package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(ConfigMissing, "API key missing", cause)

	if err.Code != ConfigMissing {
		t.Errorf("Code = %v, want %v", err.Code, ConfigMissing)
	}
	if err.Message != "API key missing" {
		t.Errorf("Message = %q, want %q", err.Message, "API key missing")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestConstructorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		code ErrorCode
		msg  string
	}{
		{"rate limit", NewRateLimitError("5 calls per minute"), RateLimited, "Rate limit reached: 5 calls per minute"},
		{"timeout", NewTimeoutError(context.DeadlineExceeded), Timeout, "Request timed out"},
		{"no data", NewNoDataError("No data found for symbol X"), NoData, "No data found for symbol X"},
		{"config", NewConfigMissingError("ALPHA_VANTAGE_API_KEY"), ConfigMissing, "ALPHA_VANTAGE_API_KEY environment variable is required"},
		{"api", NewAPIError("API Error: bad", nil), APIError, "API Error: bad"},
		{"upstream", NewUpstreamError(errors.New("dial tcp")), UpstreamUnavailable, "Request failed: dial tcp"},
		{"param default", NewInvalidParameterError("symbol", ""), InvalidParameter, "invalid parameter: symbol"},
		{"internal", NewInternalError("decode", errors.New("eof")), InternalError, "decode failed: eof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Error() != tt.msg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	wrappedRate := fmt.Errorf("quote: %w", NewRateLimitError("slow down"))
	plain := errors.New("boom")

	tests := []struct {
		name        string
		err         error
		wantCode    ErrorCode
		wantRate    bool
		wantAPI     bool
		wantService bool
	}{
		{"wrapped rate limit", wrappedRate, RateLimited, true, true, true},
		{"api error", NewAPIError("API Error: x", nil), APIError, false, true, true},
		{"no data", NewNoDataError("none"), NoData, false, false, true},
		{"plain error", plain, InternalError, false, false, false},
		{"internal", NewInternalError("x", plain), InternalError, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.wantCode {
				t.Errorf("CodeOf() = %v, want %v", got, tt.wantCode)
			}
			if got := IsRateLimited(tt.err); got != tt.wantRate {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.wantRate)
			}
			if got := IsAPIError(tt.err); got != tt.wantAPI {
				t.Errorf("IsAPIError() = %v, want %v", got, tt.wantAPI)
			}
			if got := IsServiceError(tt.err); got != tt.wantService {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.wantService)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := NewInvalidParameterError("outputsize", "outputsize must be 'compact' or 'full'")
	details, ok := err.Details.(map[string]string)
	if !ok {
		t.Fatalf("Details type = %T, want map[string]string", err.Details)
	}
	if details["parameter"] != "outputsize" {
		t.Errorf("details[parameter] = %q, want outputsize", details["parameter"])
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(NoData); fixes != nil {
		t.Errorf("expected no fixes for NoData, got %v", fixes)
	}
	fixes := GetSuggestedFixes(ConfigMissing)
	if len(fixes) == 0 || fixes[0].Variable != "ALPHA_VANTAGE_API_KEY" {
		t.Errorf("unexpected fixes for ConfigMissing: %v", fixes)
	}
}
