package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// maxMessageLen bounds provider error text copied into errors.
const maxMessageLen = 512

// Classify maps a non-2xx response onto a provider error.
//
//   - 429 is RateLimited, with the Retry-After hint parsed
//   - 401, 403, 408 and 5xx are Unavailable
//   - any other 4xx is InvalidRequest
//   - anything else is ProviderFailure
func Classify(provider domain.AIProvider, model string, resp *http.Response, body []byte, now time.Time) *domain.ProviderError {
	pe := &domain.ProviderError{
		Kind:       KindForStatus(resp.StatusCode),
		Provider:   provider,
		Model:      model,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
	if pe.Kind == domain.KindRateLimited {
		pe.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), now)
	}
	return pe
}

// KindForStatus maps an HTTP status code onto an error kind.
func KindForStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusRequestTimeout, code >= 500:
		return domain.KindUnavailable
	case code >= 400:
		return domain.KindInvalidRequest
	default:
		return domain.KindProviderFailure
	}
}

// TransportError wraps a failure to reach the provider as Unavailable.
// Context cancellation stays visible through errors.Is.
func TransportError(provider domain.AIProvider, model string, err error) *domain.ProviderError {
	return domain.NewProviderError(domain.KindUnavailable, provider, model, err)
}

// Malformed reports a response the adapter could not interpret.
func Malformed(provider domain.AIProvider, model, message string, err error) *domain.ProviderError {
	pe := domain.NewProviderError(domain.KindProviderFailure, provider, model, err)
	pe.Message = message
	return pe
}

// ParseRetryAfter reads a Retry-After header given as delay seconds or an HTTP date.
// Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// errorMessage extracts the provider's error text from a response body.
// Understands {"error": "text"}, {"error": {"message": "text"}} and
// {"message": "text"}, falling back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var text string
			if json.Unmarshal(envelope.Error, &text) == nil && text != "" {
				return truncate(text)
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
				return truncate(obj.Message)
			}
		}
		if envelope.Message != "" {
			return truncate(envelope.Message)
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}

// isRetryable reports whether another attempt may succeed.
func isRetryable(err error) bool {
	var pe *domain.ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}
