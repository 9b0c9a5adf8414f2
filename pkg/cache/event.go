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

// Package cache implements the coherent client-side cache core: a
// ControlTable arbitrating between application calls and asynchronously
// arriving back-cache events, an EventDispatcher for off-thread listener
// delivery, a pluggable InvalidationStrategy, and the CompositeCache
// front/back composition built on top of them.
package cache

import "fmt"

// EventType is the kind of mutation a back-cache event reports.  Bit-exact
// to the "Event record" described at the BackCache contract.
type EventType int

const (
	Inserted EventType = iota
	Updated
	Deleted
)

func (t EventType) String() string {
	switch t {
	case Inserted:
		return "Inserted"
	case Updated:
		return "Updated"
	case Deleted:
		return "Deleted"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// TransformState records whether an event's value has already been run
// through a CQC's transformer, so a subscription wrapped in a
// TransformerFilter never double-applies it.
type TransformState int

const (
	NonTransformable TransformState = iota
	Transformable
	Transformed
)

// Value is an entry value that may be legitimately absent.  The core never
// stores an Absent marker in a FrontCache: Value is used on the wire
// between BackCache and the core, and inside a PendingEventList,
// where "no value" is itself meaningful information.
type Value[V any] struct {
	Val    V
	Absent bool
}

// Present constructs a Value holding v.
func Present[V any](v V) Value[V] {
	return Value[V]{Val: v}
}

// NoValue constructs an absent Value.
func NoValue[V any]() Value[V] {
	return Value[V]{Absent: true}
}

// Event is the record a BackCache delivers to a listener for every change,
// and the record a PendingEventList accumulates during an in-flight
// operation.
type Event[K comparable, V any] struct {
	Type           EventType
	Key            K
	OldValue       Value[V]
	NewValue       Value[V]
	Synthetic      bool
	Priming        bool
	TransformState TransformState
}

// ListenerRole is the tagged-variant enumeration the Design Notes
// call for in place of typed listener subclasses (AddListener,
// RemoveListener, PrimingListener, SimpleListener, FrontCacheListener,
// DeactivationListener).  Role labels what a listener is for; events reach
// a listener through its descriptor's Handle func, and no code switches on
// Role.
type ListenerRole int

const (
	// AddToView handles events that bring a key into a CQC's view.
	AddToView ListenerRole = iota
	// RemoveFromView handles events that take a key out of a CQC's view.
	RemoveFromView
	// Priming handles the one-shot synthetic event delivered at
	// subscribe time and always runs synchronously.
	Priming
	// Invalidate handles CompositeCache front-cache invalidation.
	Invalidate
	// FrontEviction reacts to local eviction of a front-cache entry
	// under the Present strategy, so the per-key back subscription can
	// be torn down with it.
	FrontEviction
	// Deactivation handles the back's destroy/truncate virtual events.
	Deactivation
)

func (r ListenerRole) String() string {
	switch r {
	case AddToView:
		return "AddToView"
	case RemoveFromView:
		return "RemoveFromView"
	case Priming:
		return "Priming"
	case Invalidate:
		return "Invalidate"
	case FrontEviction:
		return "FrontEviction"
	case Deactivation:
		return "Deactivation"
	default:
		return fmt.Sprintf("ListenerRole(%d)", int(r))
	}
}

// ListenerDescriptor is what the core registers with a BackCache.  Synchronous
// is the "explicit capability flag" the Design Notes ask for in place of a
// back doing a type-switch on the listener's concrete type: it tells the
// back (and the EventDispatcher) whether callbacks run inline on the
// event-ingest thread or get queued for off-thread delivery.
type ListenerDescriptor[K comparable, V any] struct {
	// ID identifies this registration so it can be unregistered
	// symmetrically; pkg/cqc's RemoveCacheListener removes by ID, while
	// back subscriptions are removed through the func Subscribe returns.
	ID string
	// Role is the tagged variant this listener implements.
	Role ListenerRole
	// Synchronous listeners (including all Priming listeners) bypass the
	// EventDispatcher queue and run on the event-ingest thread.
	Synchronous bool
	// Lite listeners only need old/new value presence, not content; a
	// back may send a TransformerFilter-stripped event to them.
	Lite bool
	// Handle is invoked for every event this listener is subscribed to,
	// in back-emitted order.
	Handle func(Event[K, V])
}
