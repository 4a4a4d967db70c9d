package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolNotFound indicates a requested tool was never registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolTimeout indicates a tool execution exceeded its timeout.
var ErrToolTimeout = errors.New("tool execution timed out")

// ErrorKind categorizes a tool execution failure for retry purposes,
// following the same string-pattern classification idiom
// internal/provider.classifyMessage uses for provider errors.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidInput ErrorKind = "invalid_input"
	KindTimeout      ErrorKind = "timeout"
	KindNetwork      ErrorKind = "network"
	KindPermission   ErrorKind = "permission"
	KindRateLimit    ErrorKind = "rate_limit"
	KindPanic        ErrorKind = "panic"
	KindExecution    ErrorKind = "execution"
)

// Retryable reports whether an error of this kind is worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is a structured tool execution failure.
type Error struct {
	Kind       ErrorKind
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Attempts   int
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Kind))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError classifies cause's message and wraps it as a tool Error.
func NewError(toolName string, cause error) *Error {
	e := &Error{ToolName: toolName, Cause: cause, Kind: KindExecution, Attempts: 1}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = classify(cause)
	}
	return e
}

func (e *Error) WithKind(k ErrorKind) *Error     { e.Kind = k; return e }
func (e *Error) WithToolCallID(id string) *Error { e.ToolCallID = id; return e }
func (e *Error) WithMessage(msg string) *Error   { e.Message = msg; return e }
func (e *Error) WithAttempts(n int) *Error       { e.Attempts = n; return e }

func classify(err error) ErrorKind {
	if errors.Is(err, ErrToolNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return KindTimeout
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(s, "connection"), strings.Contains(s, "network"), strings.Contains(s, "refused"), strings.Contains(s, "unreachable"):
		return KindNetwork
	case strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return KindRateLimit
	case strings.Contains(s, "permission"), strings.Contains(s, "forbidden"), strings.Contains(s, "unauthorized"):
		return KindPermission
	case strings.Contains(s, "invalid"), strings.Contains(s, "validation"), strings.Contains(s, "required"), strings.Contains(s, "missing"):
		return KindInvalidInput
	default:
		return KindExecution
	}
}

// AsError extracts a *Error from err's chain, if present.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable reports whether err (a *Error or a raw error) should be
// retried by the executor.
func IsRetryable(err error) bool {
	if te, ok := AsError(err); ok {
		return te.Kind.Retryable()
	}
	return classify(err).Retryable()
}
