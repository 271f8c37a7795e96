package slogutil

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of sensitive attributes.
const RedactedValue = "[REDACTED]"

// sensitiveSuffixes match normalized keys: lower case with "-", "_" and "."
// removed, so apikey, api_key, apiKey and ALPHA_VANTAGE_API_KEY all match.
var sensitiveSuffixes = []string{
	"apikey",
	"token",
	"authorization",
	"password",
	"secret",
}

// IsSensitiveKey reports whether values logged under key must never be written.
func IsSensitiveKey(key string) bool {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.':
			return -1
		}
		return r
	}, strings.ToLower(key))
	if normalized == "" {
		return false
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// replaceAttr is the ReplaceAttr hook for the JSON handler: UTC timestamps
// and redacted secrets.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}
