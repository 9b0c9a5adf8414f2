/*
Copyright 2025 the Unikorn Authors.
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.  These are never returned bare: callers get them
// back wrapped (in an OpError in this package, with fmt.Errorf("%w: ...")
// in pkg/cqc) so errors.Is still works but the message carries the
// key/operation that triggered it.
var (
	// ErrInactive is returned once a cache has been released; any
	// subsequent operation fails with this.
	ErrInactive = errors.New("cache is inactive")

	// ErrInvalidState is raised when the synchronization state machine
	// observes a transition it didn't expect, usually because of a
	// concurrent disconnect.  It is always safe to retry the operation.
	ErrInvalidState = errors.New("invalid cache state transition")

	// ErrPredicateViolation is raised when a write to a ContinuousQueryCache
	// does not satisfy its filter.
	ErrPredicateViolation = errors.New("key/value does not satisfy the view predicate")

	// ErrOutOfView is raised when invoke/aggregate targets a key that
	// exists in the back but is not a member of the view.
	ErrOutOfView = errors.New("key exists but is outside the view")

	// ErrUnsupported is raised when the back lacks a required capability,
	// or a listener kind can't be hosted by the current configuration.
	ErrUnsupported = errors.New("operation not supported")

	// ErrArgumentInvalid is raised for malformed caller input.
	ErrArgumentInvalid = errors.New("argument invalid")

	// ErrReadOnly is raised when a mutating call targets a read-only
	// ContinuousQueryCache.
	ErrReadOnly = errors.New("cache is read-only")

	// ErrBusy is returned by release() when GLOBAL can't be acquired
	// without blocking.
	ErrBusy = errors.New("cache is in active use by other threads")
)

// OpError augments one of the sentinel errors above with the key and
// operation that triggered it, and optionally wraps an underlying error
// from the back cache.
type OpError struct {
	// Op names the public operation that failed, e.g. "get", "insert".
	Op string
	// Key is the key involved, if any.
	Key string
	// Kind is one of the sentinel errors above; errors.Is(err, Kind) works
	// through OpError's Unwrap.
	Kind error
	// Err is the underlying error, if OpError wraps a back-cache failure
	// rather than originating the Kind itself.
	Err error
}

func (e *OpError) Error() string {
	if e.Key != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s %q: %s: %s", e.Op, e.Key, e.Kind, e.Err)
		}

		return fmt.Sprintf("%s %q: %s", e.Op, e.Key, e.Kind)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *OpError) Unwrap() error {
	if e.Err != nil {
		return fmt.Errorf("%w: %w", e.Kind, e.Err)
	}

	return e.Kind
}

// newOpError is a convenience constructor used throughout this package.
func newOpError(op, key string, kind error, err error) *OpError {
	return &OpError{Op: op, Key: key, Kind: kind, Err: err}
}
