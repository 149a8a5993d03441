// Package retry provides retry mechanism strategies and implementations
package retry

import (
	"fmt"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// Policy is the immutable bundle of strategies an executor applies.
// Different executors may hold different policies.
type Policy struct {
	// Label names the retried operation and namespaces stateful keys
	Label string

	// MaxAttempts is the attempt bound the default stop strategy was built from
	MaxAttempts int

	// Delay is the fixed backoff the default backoff strategy was built from
	Delay time.Duration

	// Stop decides whether another attempt is allowed
	Stop StopStrategy

	// Backoff computes the pause between attempts
	Backoff BackoffStrategy

	// Predicate classifies failures as retryable or terminal
	Predicate RetryPredicate

	// Redeliver hands stateful retryable failures back to the caller instead of
	// looping in-process; the next call with the same key resumes the series
	Redeliver bool
}

// PolicyOption is a configuration option for retry policies
type PolicyOption func(*Policy)

// NewPolicy creates a policy stopping after maxAttempts attempts with a fixed
// delay between them, retrying remote access failures anywhere in the cause chain
func NewPolicy(maxAttempts int, delay time.Duration, opts ...PolicyOption) Policy {
	p := Policy{
		Label:       "default",
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Stop:        StopAfterAttempts(maxAttempts),
		Backoff:     NewFixedBackoff(delay),
		Predicate:   RetryOnRemoteAccess(),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// WithLabel sets the label
func WithLabel(label string) PolicyOption {
	return func(p *Policy) {
		p.Label = label
	}
}

// WithStopStrategy replaces the stop strategy
func WithStopStrategy(stop StopStrategy) PolicyOption {
	return func(p *Policy) {
		p.Stop = stop
	}
}

// WithBackoff replaces the backoff strategy
func WithBackoff(backoff BackoffStrategy) PolicyOption {
	return func(p *Policy) {
		p.Backoff = backoff
	}
}

// WithPredicate replaces the retry predicate
func WithPredicate(predicate RetryPredicate) PolicyOption {
	return func(p *Policy) {
		p.Predicate = predicate
	}
}

// WithRetryableKinds retries the given kinds
func WithRetryableKinds(traverseCauses bool, kinds ...types.ErrorKind) PolicyOption {
	return func(p *Policy) {
		p.Predicate = NewKindPredicate(kinds, WithTraverseCauses(traverseCauses))
	}
}

// WithRedeliver enables redelivery mode for stateful execution
func WithRedeliver(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.Redeliver = enabled
	}
}

// Validate checks that the policy can be executed
func (p Policy) Validate() error {
	switch {
	case p.Stop == nil:
		return fmt.Errorf("%w: stop strategy is required", types.ErrInvalidPolicy)
	case p.Backoff == nil:
		return fmt.Errorf("%w: backoff strategy is required", types.ErrInvalidPolicy)
	case p.Predicate == nil:
		return fmt.Errorf("%w: retry predicate is required", types.ErrInvalidPolicy)
	case p.Label == "":
		return fmt.Errorf("%w: label is required", types.ErrInvalidPolicy)
	}
	if s, ok := p.Stop.(*MaxAttemptsStop); ok && s.MaxAttempts() < 1 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", types.ErrInvalidPolicy, s.MaxAttempts())
	}
	return nil
}
