package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure classes for remote calls. Transient failures may be retried;
// fatal failures abort immediately; terminal failures are the remote
// reporting a finished-failed job, which is a task outcome, not an error
// of the transport.
type errorKind int

const (
	kindTransient errorKind = iota
	kindFatal
	kindTerminal
)

// RemoteError wraps a failure from the remote executor with its class.
type RemoteError struct {
	kind       errorKind
	StatusCode int
	Message    string
	cause      error
}

func (e *RemoteError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("remote executor: %s: %v", e.Message, e.cause)
	}
	return "remote executor: " + e.Message
}

func (e *RemoteError) Unwrap() error { return e.cause }

// NewTransientError marks a failure as retryable (timeout, 5xx, malformed body,
// connection reset).
func NewTransientError(msg string, cause error) *RemoteError {
	return &RemoteError{kind: kindTransient, Message: msg, cause: cause}
}

// NewFatalError marks a failure as non-retryable (auth, bad request).
func NewFatalError(status int, msg string) *RemoteError {
	return &RemoteError{kind: kindFatal, StatusCode: status, Message: msg}
}

// NewTerminalFailure marks the remote's own finished-failed report.
func NewTerminalFailure(code int, msg string) *RemoteError {
	return &RemoteError{kind: kindTerminal, StatusCode: code, Message: msg}
}

// IsTransient reports whether err should be retried under the backoff policy.
func IsTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.kind == kindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsFatal reports whether err is a non-retryable client error.
func IsFatal(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.kind == kindFatal
}

// IsTerminalFailure reports whether err is the remote's finished-failed state.
func IsTerminalFailure(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.kind == kindTerminal
}

// classifyHTTPStatus buckets an HTTP response status the way the remote
// executor's contract requires: 408/429/5xx retryable, remaining 4xx fatal.
func classifyHTTPStatus(status int, body string) error {
	if status == 408 || status == 429 || status >= 500 {
		return NewTransientError(fmt.Sprintf("HTTP %d: %s", status, body), nil)
	}
	return NewFatalError(status, fmt.Sprintf("HTTP %d: %s", status, body))
}
