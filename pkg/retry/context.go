package retry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryContext is the mutable record of one retry series.
//
// Stateless series own their context for the duration of a single Execute call.
// Stateful contexts live in a RetryContextCache and are mutated in place across
// calls that share the same StateKey.
type RetryContext struct {
	id        string
	label     string
	key       StateKey
	stateful  bool
	startedAt time.Time

	mu           sync.RWMutex
	attemptCount int
	lastFailure  error
	attributes   map[string]any
}

// NewRetryContext creates a stateless retry context
func NewRetryContext(label string, startedAt time.Time) *RetryContext {
	return &RetryContext{
		id:         uuid.NewString(),
		label:      label,
		startedAt:  startedAt,
		attributes: make(map[string]any),
	}
}

// NewStatefulRetryContext creates a retry context bound to key
func NewStatefulRetryContext(key StateKey, startedAt time.Time) *RetryContext {
	rc := NewRetryContext(key.Label, startedAt)
	rc.key = key
	rc.stateful = true
	return rc
}

// ID returns a unique identifier for log correlation
func (rc *RetryContext) ID() string {
	return rc.id
}

// Label returns the series label
func (rc *RetryContext) Label() string {
	return rc.label
}

// Key returns the state key, ok is false for stateless contexts
func (rc *RetryContext) Key() (StateKey, bool) {
	return rc.key, rc.stateful
}

// IsStateful reports whether the context is bound to a state key
func (rc *RetryContext) IsStateful() bool {
	return rc.stateful
}

// StartedAt returns the creation time
func (rc *RetryContext) StartedAt() time.Time {
	return rc.startedAt
}

// AttemptCount returns the number of attempts made so far
func (rc *RetryContext) AttemptCount() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.attemptCount
}

// LastFailure returns the failure of the most recent attempt, nil after a success
func (rc *RetryContext) LastFailure() error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.lastFailure
}

// Attribute returns a caller attribute
func (rc *RetryContext) Attribute(name string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.attributes[name]
	return v, ok
}

// SetAttribute stores a caller attribute
func (rc *RetryContext) SetAttribute(name string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.attributes[name] = value
}

// RemoveAttribute deletes a caller attribute
func (rc *RetryContext) RemoveAttribute(name string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.attributes, name)
}

// Attributes returns a copy of all caller attributes
func (rc *RetryContext) Attributes() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]any, len(rc.attributes))
	for k, v := range rc.attributes {
		out[k] = v
	}
	return out
}

// beginAttempt increments the attempt count and returns the new value
func (rc *RetryContext) beginAttempt() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.attemptCount++
	return rc.attemptCount
}

func (rc *RetryContext) registerFailure(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastFailure = err
}

func (rc *RetryContext) registerSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastFailure = nil
}

type retryContextKey struct{}

// withRetryContext attaches rc to ctx for the work and recovery units
func withRetryContext(ctx context.Context, rc *RetryContext) context.Context {
	return context.WithValue(ctx, retryContextKey{}, rc)
}

// FromContext returns the RetryContext of the attempt running under ctx
func FromContext(ctx context.Context) (*RetryContext, bool) {
	rc, ok := ctx.Value(retryContextKey{}).(*RetryContext)
	return rc, ok
}
