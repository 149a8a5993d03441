package retry

import (
	"github.com/jzx17/goretry/pkg/types"
)

// RetryPredicate classifies a failure as retryable or terminal
type RetryPredicate interface {
	// Retryable reports whether err may be retried
	Retryable(err error) bool
}

// PredicateFunc adapts a plain function to RetryPredicate
type PredicateFunc func(err error) bool

// Retryable calls f(err)
func (f PredicateFunc) Retryable(err error) bool {
	return f(err)
}

// KindPredicate classifies failures by their declared ErrorKind.
//
// KindTerminal is never retryable, even when listed. With cause traversal
// enabled the whole chain is inspected: any terminal kind in it makes the
// failure terminal, otherwise the first listed kind makes it retryable.
// Without traversal only the outermost error's kind is considered.
type KindPredicate struct {
	retryable map[types.ErrorKind]bool
	traverse  bool
}

// PredicateOption configures a KindPredicate
type PredicateOption func(*KindPredicate)

// WithTraverseCauses enables or disables inspection of the cause chain
func WithTraverseCauses(enabled bool) PredicateOption {
	return func(p *KindPredicate) {
		p.traverse = enabled
	}
}

// NewKindPredicate creates a predicate retrying the given kinds
func NewKindPredicate(kinds []types.ErrorKind, opts ...PredicateOption) *KindPredicate {
	p := &KindPredicate{
		retryable: make(map[types.ErrorKind]bool, len(kinds)),
	}
	for _, k := range kinds {
		if k == types.KindTerminal {
			continue
		}
		p.retryable[k] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RetryOnRemoteAccess retries remote access failures, searching the whole cause chain
func RetryOnRemoteAccess() *KindPredicate {
	return NewKindPredicate([]types.ErrorKind{types.KindRemoteAccess}, WithTraverseCauses(true))
}

// Retryable implements RetryPredicate
func (p *KindPredicate) Retryable(err error) bool {
	if err == nil {
		return false
	}

	if !p.traverse {
		return p.retryable[types.KindOf(err)]
	}

	kinds := types.Kinds(err)
	if len(kinds) == 0 {
		return p.retryable[types.KindUnknown]
	}

	matched := false
	for _, k := range kinds {
		if k == types.KindTerminal {
			return false
		}
		if p.retryable[k] {
			matched = true
		}
	}
	return matched
}

// Kinds returns the retryable kinds
func (p *KindPredicate) Kinds() []types.ErrorKind {
	kinds := make([]types.ErrorKind, 0, len(p.retryable))
	for k := range p.retryable {
		kinds = append(kinds, k)
	}
	return kinds
}

// TraversesCauses reports whether the cause chain is inspected
func (p *KindPredicate) TraversesCauses() bool {
	return p.traverse
}
