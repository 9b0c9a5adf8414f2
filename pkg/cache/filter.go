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

// Filter is the only operation the core needs from the query filter
// algebra: Evaluate against
// a key/value pair.  Construction, extraction, and serialization of filters
// belongs to that external collaborator, not here.
type Filter[K comparable, V any] interface {
	Evaluate(key K, value V) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc[K comparable, V any] func(key K, value V) bool

func (f FilterFunc[K, V]) Evaluate(key K, value V) bool {
	return f(key, value)
}

// AndFilter evaluates true only when both inner filters do.  This is the
// concrete type Merge (pkg/cqc/filtermerge.go) builds when combining
// a CQC's view predicate F with a caller-supplied F'.
type AndFilter[K comparable, V any] struct {
	Left, Right Filter[K, V]
}

func And[K comparable, V any](left, right Filter[K, V]) Filter[K, V] {
	return AndFilter[K, V]{Left: left, Right: right}
}

func (f AndFilter[K, V]) Evaluate(key K, value V) bool {
	return f.Left.Evaluate(key, value) && f.Right.Evaluate(key, value)
}

// NotFilter inverts an inner filter.  Nothing in the core builds one (the
// Logical strategy drops synthetic deletes in CompositeCache.onEvent, not
// through a filter); it is a first-class filter for callers that want to
// negate a predicate directly.
type NotFilter[K comparable, V any] struct {
	Inner Filter[K, V]
}

func Not[K comparable, V any](inner Filter[K, V]) Filter[K, V] {
	return NotFilter[K, V]{Inner: inner}
}

func (f NotFilter[K, V]) Evaluate(key K, value V) bool {
	return !f.Inner.Evaluate(key, value)
}

// InKeySetFilter restricts evaluation to a fixed key set, used to request
// atomic priming events for an enumerated batch of keys at subscribe time.
type InKeySetFilter[K comparable, V any] struct {
	Keys map[K]struct{}
}

func InKeySet[K comparable, V any](keys []K) InKeySetFilter[K, V] {
	set := make(map[K]struct{}, len(keys))

	for _, k := range keys {
		set[k] = struct{}{}
	}

	return InKeySetFilter[K, V]{Keys: set}
}

func (f InKeySetFilter[K, V]) Evaluate(key K, _ V) bool {
	_, ok := f.Keys[key]
	return ok
}

// EventMask selects which event types a subscription should receive.
// UpdatedEntered/UpdatedLeft/UpdatedWithin distinguish an Updated event by
// how it moves a key relative to a filter's view: entering it, leaving it,
// or remaining inside it (needed only when cacheValues requires the new
// value for in-view updates).
type EventMask uint8

const (
	MaskInserted EventMask = 1 << iota
	MaskUpdatedEntered
	MaskUpdatedLeft
	MaskUpdatedWithin
	MaskDeleted
)

func (m EventMask) Has(bit EventMask) bool {
	return m&bit != 0
}

// EventFilter pairs an event mask with an inner value filter, the shape
// subscriptions are expressed in on the wire.
type EventFilter[K comparable, V any] struct {
	Mask  EventMask
	Inner Filter[K, V]
}

func NewEventFilter[K comparable, V any](mask EventMask, inner Filter[K, V]) EventFilter[K, V] {
	return EventFilter[K, V]{Mask: mask, Inner: inner}
}

func (f EventFilter[K, V]) Evaluate(key K, value V) bool {
	if f.Inner == nil {
		return true
	}

	return f.Inner.Evaluate(key, value)
}

// Transformer is either a value-extraction function (CQC's T) or the
// "semi-lite" old-value-stripping transform used by TransformerFilter.
type Transformer[V any] func(V) V

// TransformerFilter wraps an EventFilter with a value transform applied to
// events that pass it.
type TransformerFilter[K comparable, V any] struct {
	EventFilter[K, V]
	Transform Transformer[V]
}

func NewTransformerFilter[K comparable, V any](inner EventFilter[K, V], transform Transformer[V]) TransformerFilter[K, V] {
	return TransformerFilter[K, V]{EventFilter: inner, Transform: transform}
}

// StripOldValue is the "semi-lite" transformer slot.  A Transformer sees a
// single value, so this returns its argument unchanged; it does not itself
// remove an event's old value.
func StripOldValue[V any](v V) V {
	return v
}

// LimitFilter wraps an inner filter with a result-size cap.  Merging
// preserves the limit while the inner filter is conjoined with the view's
// predicate, and must not mutate the caller's original value.  LimitFilter
// itself is immutable: Limited always returns a new value.
type LimitFilter[K comparable, V any] struct {
	Inner Filter[K, V]
	Limit int
}

func (f LimitFilter[K, V]) Evaluate(key K, value V) bool {
	return f.Inner.Evaluate(key, value)
}

// Limited returns a copy of f with its inner filter replaced; f itself is
// never mutated.
func (f LimitFilter[K, V]) Limited(inner Filter[K, V]) LimitFilter[K, V] {
	return LimitFilter[K, V]{Inner: inner, Limit: f.Limit}
}

// KeyAssociation marks a filter as a key-association wrapper for the
// merge rule ("if F or F' is a key-association wrapper, it is peeled off
// and re-wrapped after merging").
type KeyAssociation[K comparable, V any] struct {
	Inner Filter[K, V]
	Assoc K
}

func (f KeyAssociation[K, V]) Evaluate(key K, value V) bool {
	return f.Inner.Evaluate(key, value)
}

func (f KeyAssociation[K, V]) Rewrap(inner Filter[K, V]) KeyAssociation[K, V] {
	return KeyAssociation[K, V]{Inner: inner, Assoc: f.Assoc}
}
