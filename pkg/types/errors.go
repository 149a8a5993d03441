// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined errors
var (
	// ErrNoRecoveryAvailable indicates retries ended and no recovery unit was configured
	ErrNoRecoveryAvailable = errors.New("no recovery available")

	// ErrAlreadyPresent indicates a retry context is already registered under the key
	ErrAlreadyPresent = errors.New("retry context already present")

	// ErrAttemptDenied indicates a listener vetoed the attempt before invocation
	ErrAttemptDenied = errors.New("retry attempt denied by listener")

	// ErrRetryPending indicates a stateful failure was handed back for redelivery
	ErrRetryPending = errors.New("retry pending redelivery")

	// ErrInvalidPolicy indicates a policy bundle that cannot be executed
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// ErrorKind classifies failures for retry decisions
type ErrorKind int

const (
	// KindUnknown is any failure that does not declare a kind
	KindUnknown ErrorKind = iota
	// KindRemoteAccess marks failures talking to a remote endpoint
	KindRemoteAccess
	// KindTerminal marks programming or validation failures
	KindTerminal
)

// String returns the configuration name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindRemoteAccess:
		return "remote_access"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ParseErrorKind parses a configuration name into an ErrorKind
func ParseErrorKind(s string) (ErrorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote_access", "remote-access", "remoteaccess":
		return KindRemoteAccess, nil
	case "terminal":
		return KindTerminal, nil
	case "unknown":
		return KindUnknown, nil
	default:
		return KindUnknown, fmt.Errorf("unknown error kind %q", s)
	}
}

// KindError is implemented by errors that declare their kind
type KindError interface {
	error
	Kind() ErrorKind
}

// RemoteAccessError represents a failed call to a remote endpoint
type RemoteAccessError struct {
	// Status is the HTTP status reported by the endpoint, 0 when the call never completed
	Status int

	// Cause is the underlying error
	Cause error
}

// NewRemoteAccessError creates a remote access error
func NewRemoteAccessError(status int, cause error) *RemoteAccessError {
	return &RemoteAccessError{Status: status, Cause: cause}
}

// Error implements the error interface
func (e *RemoteAccessError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("remote access error (status %d)", e.Status)
	}
	return fmt.Sprintf("remote access error (status %d): %v", e.Status, e.Cause)
}

// Kind implements KindError
func (e *RemoteAccessError) Kind() ErrorKind {
	return KindRemoteAccess
}

// Unwrap returns the underlying error
func (e *RemoteAccessError) Unwrap() error {
	return e.Cause
}

// TerminalError represents a failure that must never be retried
type TerminalError struct {
	// Cause is the underlying error
	Cause error
}

// NewTerminalError creates a terminal error
func NewTerminalError(cause error) *TerminalError {
	return &TerminalError{Cause: cause}
}

// Error implements the error interface
func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal error: %v", e.Cause)
}

// Kind implements KindError
func (e *TerminalError) Kind() ErrorKind {
	return KindTerminal
}

// Unwrap returns the underlying error
func (e *TerminalError) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind declared by err itself, without looking at its causes
func KindOf(err error) ErrorKind {
	if ke, ok := err.(KindError); ok {
		return ke.Kind()
	}
	return KindUnknown
}

// Kinds returns every kind declared along the cause chain of err, outermost first.
// Joined errors are walked depth first.
func Kinds(err error) []ErrorKind {
	var kinds []ErrorKind
	walkChain(err, func(e error) {
		if ke, ok := e.(KindError); ok {
			kinds = append(kinds, ke.Kind())
		}
	})
	return kinds
}

func walkChain(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		walkChain(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walkChain(inner, visit)
		}
	}
}

// RetryError wraps the final failure of a retry series with attempt information
type RetryError struct {
	// Label names the retry series
	Label string

	// Key is the state key for stateful series, empty otherwise
	Key string

	// Attempts is the number of attempts made
	Attempts int

	// Reason is a sentinel describing why the failure surfaced, may be nil
	Reason error

	// Cause is the last failure of the work unit
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// NewRetryError creates a new retry error
func NewRetryError(label string, attempts int, reason, cause error) *RetryError {
	return &RetryError{
		Label:    label,
		Attempts: attempts,
		Reason:   reason,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *RetryError) Error() string {
	var b strings.Builder
	b.WriteString("retry")
	if e.Label != "" {
		fmt.Fprintf(&b, " %s", e.Label)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " [%s]", e.Key)
	}
	if e.Reason != nil {
		fmt.Fprintf(&b, ": %v", e.Reason)
	}
	fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the reason and the underlying error
func (e *RetryError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// WithKey sets the state key
func (e *RetryError) WithKey(key string) *RetryError {
	e.Key = key
	return e
}

// WithContext adds error context
func (e *RetryError) WithContext(key string, value interface{}) *RetryError {
	e.Context[key] = value
	return e
}
