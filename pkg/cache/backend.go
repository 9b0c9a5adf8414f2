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
	"context"
	"time"
)

//go:generate mockgen -source=backend.go -destination=cachemock/backend_mock.go -package=cachemock

// SubscriptionKind selects what a Subscribe call listens to: a single key,
// a filter over the whole keyspace, or everything.
type SubscriptionKind int

const (
	SubscribeKey SubscriptionKind = iota
	SubscribeFilter
	SubscribeAll
)

// Subscription describes one call to BackCache.Subscribe.
type Subscription[K comparable, V any] struct {
	Kind SubscriptionKind
	Key  K
	// Filter is consulted when Kind is SubscribeFilter.
	Filter Filter[K, V]
	// InKeySet, when non-nil, asks the back to deliver priming events for
	// exactly this key set atomically at subscribe time.
	InKeySet []K
	// Lite requests old/new-value-elided delivery where the back supports
	// it; Standard (the zero value) gets full values.
	Lite bool
	// Priming, when true and the back supports it, asks for the one-shot
	// synthetic event carrying the current value at subscribe time.
	Priming bool
}

// Processor is the entry-processor contract the core forwards to after
// merging in a CQC's filter; its actual execution happens remotely and is
// out of scope beyond this call shape.
type Processor[K comparable, V any] func(key K, value Value[V]) (any, error)

// Aggregator is the aggregation contract, likewise executed remotely.
type Aggregator[K comparable, V any] func(entries map[K]Value[V]) (any, error)

// DeactivationEvent is delivered on BackCache's deactivation channel: a
// destroy (Deleted) or truncate (Updated).
type DeactivationEvent struct {
	Type EventType
}

// BackCache is the only surface the core consumes from the authoritative
// remote store.  Wire protocol, serialization, and transport to the
// real store are external collaborators; an in-memory reference
// implementation lives in pkg/memstore for tests and the demo binary.
type BackCache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (Value[V], error)
	GetAll(ctx context.Context, keys []K) (map[K]Value[V], error)
	// Insert stores value under key, returning the previous value.  A
	// positive ttl asks the back to expire the entry after that duration;
	// expiry surfaces as a synthetic Deleted event.  Zero means no expiry.
	Insert(ctx context.Context, key K, value V, ttl time.Duration) (Value[V], error)
	InsertAll(ctx context.Context, entries map[K]V) error
	Remove(ctx context.Context, key K) error
	Clear(ctx context.Context) error
	Truncate(ctx context.Context) error

	// Query returns the keys (cacheValues==false) or entries
	// (cacheValues==true) satisfying filter.
	Query(ctx context.Context, filter Filter[K, V], cacheValues bool) (map[K]Value[V], error)

	Invoke(ctx context.Context, key K, proc Processor[K, V]) (any, error)
	InvokeAll(ctx context.Context, keys []K, proc Processor[K, V]) (map[K]any, error)
	Aggregate(ctx context.Context, keys []K, agg Aggregator[K, V]) (any, error)
	AggregateFilter(ctx context.Context, filter Filter[K, V], agg Aggregator[K, V]) (any, error)

	AddIndex(ctx context.Context, extractorName string, ordered bool) error
	// RemoveIndex is intentionally never called from pkg/cqc (removal
	// would affect the back's other clients); it exists on the interface
	// only because a real back does support removing indexes.
	RemoveIndex(ctx context.Context, extractorName string) error

	// Subscribe registers a listener and returns an unsubscribe handle.
	// If sub.Priming is requested but the back can't support it,
	// ErrUnsupported is returned so the caller can retry non-priming.
	Subscribe(ctx context.Context, sub Subscription[K, V], listener *ListenerDescriptor[K, V]) (unsubscribe func(), err error)

	// SubscribeDeactivation registers the weak-reference deactivation
	// listener.  The returned func unregisters it.
	SubscribeDeactivation(handle func(DeactivationEvent)) (unsubscribe func())

	// SupportsPriming reports whether Subscribe honors sub.Priming.
	SupportsPriming() bool
}
