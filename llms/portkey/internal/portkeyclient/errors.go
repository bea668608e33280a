package portkeyclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// GatewayError describes a non-2xx response from the Portkey gateway.
// The gateway forwards upstream provider errors in the OpenAI error
// format, so Type and Message usually originate from the provider that
// ultimately handled (or rejected) the request.
type GatewayError struct {
	// StatusCode is the HTTP status returned by the gateway.
	StatusCode int

	// Type is the error type from the gateway body (e.g.
	// "invalid_request_error"), if one was present.
	Type string

	// Message is a human-readable description of the failure.
	Message string

	// Retryable reports whether retrying the request may succeed.
	// Rate limits and server errors are retryable; client errors are not.
	Retryable bool

	// RetryAfter holds the Retry-After hint from a 429 response,
	// zero when the gateway did not send one.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("portkey gateway: %s (HTTP %d)", e.Message, e.StatusCode)
}

// MapHTTPError converts an HTTP response with a non-2xx status code into
// a GatewayError. It attempts to parse the response body as an
// ErrorResponse to extract a descriptive message.
func MapHTTPError(resp *http.Response) *GatewayError {
	message, errType := ExtractError(resp.Body)

	ge := &GatewayError{
		StatusCode: resp.StatusCode,
		Type:       errType,
		Message:    message,
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		if ge.Message == "" {
			ge.Message = "invalid request to gateway"
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if ge.Message == "" {
			ge.Message = "gateway authentication failed, check the Portkey API key"
		}

	case resp.StatusCode == http.StatusNotFound:
		if ge.Message == "" {
			ge.Message = "gateway resource not found"
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		if ge.Message == "" {
			ge.Message = "gateway rate limit exceeded"
		}
		ge.Retryable = true
		ge.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))

	case resp.StatusCode >= http.StatusInternalServerError:
		if ge.Message == "" {
			ge.Message = fmt.Sprintf("gateway server error (HTTP %d)", resp.StatusCode)
		}
		ge.Retryable = true

	default:
		if ge.Message == "" {
			ge.Message = fmt.Sprintf("unexpected gateway error (HTTP %d)", resp.StatusCode)
		}
	}

	return ge
}

// MapNetworkError wraps a network-level error (connection refused, timeout,
// DNS resolution failure) with gateway context. The original error remains
// available through errors.Is/As unwrapping.
func MapNetworkError(err error) error {
	return fmt.Errorf("portkey gateway: connection error: %w", err)
}

// ExtractError tries to parse the response body as an ErrorResponse and
// returns the error message and type if found. At most 4 KiB of the body
// is read.
func ExtractError(body io.Reader) (message, errType string) {
	if body == nil {
		return "", ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "", ""
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message, errResp.Error.Type
	}

	return "", ""
}

// parseRetryAfter converts a Retry-After header in delay-seconds form to
// a duration. HTTP-date form and malformed values yield zero.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
