// Package errorset provides an explicit error-list type for validation
// pipelines that either short-circuit on the first failure (dependent steps)
// or evaluate every check and report all failures at once (independent
// checks). The distinction is part of the verification contract, not an
// implementation detail.
package errorset

import (
	"fmt"
	"strings"
)

// ErrorSet is an ordered collection of failure messages. The zero value is
// empty and means success.
type ErrorSet []string

// New creates an ErrorSet from the given messages.
func New(msgs ...string) ErrorSet {
	return ErrorSet(msgs)
}

// Newf creates a single-entry ErrorSet from a format string.
func Newf(format string, args ...any) ErrorSet {
	return ErrorSet{fmt.Sprintf(format, args...)}
}

// Error implements the error interface, joining all messages.
func (e ErrorSet) Error() string {
	return strings.Join(e, "; ")
}

// IsEmpty reports whether the set contains no failures.
func (e ErrorSet) IsEmpty() bool {
	return len(e) == 0
}

// With returns a new set containing the entries of both sets. The receiver
// is not modified.
func (e ErrorSet) With(other ErrorSet) ErrorSet {
	if len(other) == 0 {
		return e
	}
	merged := make(ErrorSet, 0, len(e)+len(other))
	merged = append(merged, e...)
	merged = append(merged, other...)
	return merged
}

// Combine aggregates the failures of any number of independent checks.
// An empty result means every check passed.
func Combine(sets ...ErrorSet) ErrorSet {
	var combined ErrorSet
	for _, s := range sets {
		combined = combined.With(s)
	}
	return combined
}

// AsError returns the set as an error, or nil if it is empty. Useful at the
// boundary between aggregated validation and idiomatic error returns.
func (e ErrorSet) AsError() error {
	if e.IsEmpty() {
		return nil
	}
	return e
}
