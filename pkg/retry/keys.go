package retry

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// StateKey identifies a stateful retry series
type StateKey struct {
	// Label namespaces keys, usually the name of the retried operation
	Label string

	// Fingerprint is the caller-defined identity of the logical argument
	Fingerprint string
}

// String returns "label:fingerprint"
func (k StateKey) String() string {
	return k.Label + ":" + k.Fingerprint
}

// Fingerprinter is implemented by arguments that carry a stable identity,
// typically a message identifier. Two invocations are the same logical retry
// iff their fingerprints are equal.
type Fingerprinter interface {
	Fingerprint() string
}

// Fingerprint is a ready-made Fingerprinter for plain identifiers
type Fingerprint string

// Fingerprint implements Fingerprinter
func (f Fingerprint) Fingerprint() string {
	return string(f)
}

// DeriveKey computes the state key for label and arg.
//
// Arguments implementing Fingerprinter map to their fingerprint. Anything else
// falls back to object identity: a pointer is identified by its address, and a
// value without identity gets a fresh key on every call. In both fallback cases
// redelivered copies of the same message start a new series, so stateful
// callers should always pass a Fingerprinter.
func DeriveKey(label string, arg any) StateKey {
	if fp, ok := arg.(Fingerprinter); ok {
		return StateKey{Label: label, Fingerprint: fp.Fingerprint()}
	}

	if arg != nil {
		v := reflect.ValueOf(arg)
		if v.Kind() == reflect.Pointer && !v.IsNil() {
			return StateKey{Label: label, Fingerprint: fmt.Sprintf("%T@%#x", arg, v.Pointer())}
		}
	}

	return StateKey{Label: label, Fingerprint: "anon-" + uuid.NewString()}
}
