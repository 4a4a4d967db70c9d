package provider

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the provider-agnostic classification every transport error
// collapses into, independent of which API shape produced it.
type ErrorKind string

const (
	// KindAborted means the caller's context was cancelled.
	KindAborted ErrorKind = "aborted"
	// KindNoProvider means no provider is registered for the requested api/model.
	KindNoProvider ErrorKind = "no_provider"
	// KindAPIError is a well-formed error response body from the provider.
	KindAPIError ErrorKind = "api_error"
	// KindNetworkError is a transport-level failure below the HTTP layer.
	KindNetworkError ErrorKind = "network_error"
	// KindDecodingError means the response body could not be parsed as the
	// expected wire format.
	KindDecodingError ErrorKind = "decoding_error"
	// KindTimeout means the request exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited corresponds to HTTP 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindOverloaded corresponds to HTTP 529 (Anthropic's overloaded signal).
	KindOverloaded ErrorKind = "overloaded"
	// KindServerError corresponds to HTTP >= 500 other than 529.
	KindServerError ErrorKind = "server_error"
)

// Retryable reports whether the retry policy (internal/retry) should ever
// attempt this kind of error again. NoProvider and DecodingError are
// permanent: retrying without changing inputs cannot help.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetworkError, KindTimeout, KindRateLimited, KindOverloaded, KindServerError:
		return true
	default:
		return false
	}
}

// Error is the structured error every provider adapter returns in place of
// a raw transport error, carrying enough context for retry, logging, and
// the outer agent loop's error-kind switch.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	Status     int
	Message    string
	RetryAfter int // seconds, set only for KindRateLimited when the provider sent Retry-After
	Cause      error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause as a provider Error, classifying it from its message
// text when no HTTP status is available (network failures, context
// cancellation surfaced as a plain error).
func NewError(provider, model string, cause error) *Error {
	e := &Error{Provider: provider, Model: model, Cause: cause, Kind: KindNetworkError}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = classifyMessage(cause.Error())
	}
	return e
}

// WithStatus sets the HTTP status and reclassifies per the status-to-kind
// mapping: 429 -> RateLimited, 529 -> Overloaded, >=500 -> ServerError,
// otherwise the caller should have already classified from the parsed body
// as KindAPIError.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	e.Kind = classifyStatusCode(status)
	return e
}

// WithRetryAfter records a provider-supplied Retry-After duration in
// seconds, valid only alongside KindRateLimited.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// WithMessage overrides the human-readable message, e.g. with a parsed
// provider error body's message field.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// classifyStatusCode maps an HTTP status to an ErrorKind per the provider
// error taxonomy: 429 is always RateLimited, 529 is Anthropic's overloaded
// signal, any other >=500 is a generic ServerError, and anything else that
// reaches here (a body we could parse) is an ordinary APIError.
func classifyStatusCode(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == 529:
		return KindOverloaded
	case status >= 500:
		return KindServerError
	default:
		return KindAPIError
	}
}

// classifyMessage is the fallback used when no HTTP status is available —
// a transport error, a cancelled context, or a response body that didn't
// even parse as an error envelope.
func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context canceled"), strings.Contains(lower, "context cancelled"):
		return KindAborted
	case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timeout"), strings.Contains(lower, "etimedout"):
		return KindTimeout
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"), strings.Contains(lower, "429"):
		return KindRateLimited
	case strings.Contains(lower, "overloaded"), strings.Contains(lower, "529"):
		return KindOverloaded
	case strings.Contains(lower, "invalid character"), strings.Contains(lower, "unexpected end of json"), strings.Contains(lower, "unmarshal"):
		return KindDecodingError
	case strings.Contains(lower, "internal server"), strings.Contains(lower, "server error"),
		strings.Contains(lower, "502"), strings.Contains(lower, "503"), strings.Contains(lower, "504"):
		return KindServerError
	default:
		return KindNetworkError
	}
}
