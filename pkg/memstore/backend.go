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

// Package memstore is a reference, in-memory implementation of
// cache.BackCache, used by tests and the demo binary in place of a real
// remote store. There is no wire protocol, serialization, or transport:
// everything here happens in a Go map, synchronously, in-process.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
)

type subEntry[K comparable, V any] struct {
	kind     cache.SubscriptionKind
	key      K
	filter   cache.Filter[K, V]
	listener *cache.ListenerDescriptor[K, V]
}

// Backend is a cache.BackCache backed by a plain Go map, with an
// event-ingest path that delivers to subscribers synchronously and
// in-order on the calling goroutine, close enough to a real event-ingest
// thread for tests without a transport.
type Backend[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
	// gen invalidates a pending expiry timer when its key is written or
	// removed again before the timer fires.
	gen map[K]uint64

	subMu   sync.Mutex
	keySubs map[K][]*subEntry[K, V]
	allSubs []*subEntry[K, V]

	indexMu sync.Mutex
	indexes map[string]bool

	deactivation *cache.DeactivationFanout
}

// New constructs a Backend seeded with the given contents.
func New[K comparable, V any](seed map[K]V) *Backend[K, V] {
	data := make(map[K]V, len(seed))
	for k, v := range seed {
		data[k] = v
	}

	return &Backend[K, V]{
		data:         data,
		gen:          make(map[K]uint64),
		keySubs:      make(map[K][]*subEntry[K, V]),
		indexes:      make(map[string]bool),
		deactivation: cache.NewDeactivationFanout(),
	}
}

func (b *Backend[K, V]) Get(_ context.Context, key K) (cache.Value[V], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	if !ok {
		return cache.NoValue[V](), nil
	}

	return cache.Present(v), nil
}

func (b *Backend[K, V]) GetAll(_ context.Context, keys []K) (map[K]cache.Value[V], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[K]cache.Value[V], len(keys))

	for _, k := range keys {
		if v, ok := b.data[k]; ok {
			out[k] = cache.Present(v)
		} else {
			out[k] = cache.NoValue[V]()
		}
	}

	return out, nil
}

func (b *Backend[K, V]) Insert(_ context.Context, key K, value V, ttl time.Duration) (cache.Value[V], error) {
	b.mu.Lock()
	old, existed := b.data[key]
	b.data[key] = value
	b.gen[key]++
	gen := b.gen[key]
	b.mu.Unlock()

	prev := cache.NoValue[V]()
	oldValue := cache.NoValue[V]()
	evType := cache.Inserted

	if existed {
		prev = cache.Present(old)
		oldValue = cache.Present(old)
		evType = cache.Updated
	}

	b.deliver(cache.Event[K, V]{Type: evType, Key: key, OldValue: oldValue, NewValue: cache.Present(value)})

	if ttl > 0 {
		time.AfterFunc(ttl, func() { b.expire(key, gen) })
	}

	return prev, nil
}

// expire removes key if it has not been rewritten since the Insert that
// scheduled this timer, emitting a synthetic Deleted event (one caused by
// the back's own bookkeeping, here expiration, rather than an external
// write).
func (b *Backend[K, V]) expire(key K, gen uint64) {
	b.mu.Lock()
	if b.gen[key] != gen {
		b.mu.Unlock()
		return
	}

	old, existed := b.data[key]
	delete(b.data, key)
	b.mu.Unlock()

	if !existed {
		return
	}

	b.deliver(cache.Event[K, V]{Type: cache.Deleted, Key: key, OldValue: cache.Present(old), NewValue: cache.NoValue[V](), Synthetic: true})
}

func (b *Backend[K, V]) InsertAll(ctx context.Context, entries map[K]V) error {
	for k, v := range entries {
		if _, err := b.Insert(ctx, k, v, 0); err != nil {
			return err
		}
	}

	return nil
}

func (b *Backend[K, V]) Remove(_ context.Context, key K) error {
	b.mu.Lock()
	old, existed := b.data[key]
	delete(b.data, key)
	b.gen[key]++
	b.mu.Unlock()

	if !existed {
		return nil
	}

	b.deliver(cache.Event[K, V]{Type: cache.Deleted, Key: key, OldValue: cache.Present(old), NewValue: cache.NoValue[V]()})

	return nil
}

// Clear wipes the store without emitting per-key events: callers that call
// Clear (CompositeCache.Clear, CQC.Clear) reset their own local state as
// part of the same coordinated operation.
func (b *Backend[K, V]) Clear(_ context.Context) error {
	b.mu.Lock()
	b.data = make(map[K]V)
	b.mu.Unlock()

	return nil
}

// Truncate is the administrative wipe that fires the deactivation Updated
// signal: unlike Clear, nothing local has reset yet, so dependents
// must be told.
func (b *Backend[K, V]) Truncate(_ context.Context) error {
	b.mu.Lock()
	b.data = make(map[K]V)
	b.mu.Unlock()

	b.deactivation.Dispatch(cache.DeactivationEvent{Type: cache.Updated})

	return nil
}

// Destroy simulates the back store itself going away, firing the
// deactivation Deleted signal. It has no equivalent on the
// BackCache interface since destroying the back is not something the core
// ever initiates; only a test or demo harness calls this directly.
func (b *Backend[K, V]) Destroy() {
	b.deactivation.Dispatch(cache.DeactivationEvent{Type: cache.Deleted})
}

func (b *Backend[K, V]) Query(_ context.Context, filter cache.Filter[K, V], cacheValues bool) (map[K]cache.Value[V], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[K]cache.Value[V])

	for k, v := range b.data {
		if filter != nil && !filter.Evaluate(k, v) {
			continue
		}

		if cacheValues {
			out[k] = cache.Present(v)
		} else {
			out[k] = cache.NoValue[V]()
		}
	}

	return out, nil
}

func (b *Backend[K, V]) Invoke(_ context.Context, key K, proc cache.Processor[K, V]) (any, error) {
	b.mu.RLock()
	v, ok := b.data[key]
	b.mu.RUnlock()

	value := cache.NoValue[V]()
	if ok {
		value = cache.Present(v)
	}

	return proc(key, value)
}

func (b *Backend[K, V]) InvokeAll(ctx context.Context, keys []K, proc cache.Processor[K, V]) (map[K]any, error) {
	out := make(map[K]any, len(keys))

	for _, k := range keys {
		r, err := b.Invoke(ctx, k, proc)
		if err != nil {
			return nil, err
		}

		out[k] = r
	}

	return out, nil
}

func (b *Backend[K, V]) Aggregate(_ context.Context, keys []K, agg cache.Aggregator[K, V]) (any, error) {
	b.mu.RLock()
	entries := make(map[K]cache.Value[V], len(keys))

	for _, k := range keys {
		if v, ok := b.data[k]; ok {
			entries[k] = cache.Present(v)
		} else {
			entries[k] = cache.NoValue[V]()
		}
	}
	b.mu.RUnlock()

	return agg(entries)
}

func (b *Backend[K, V]) AggregateFilter(_ context.Context, filter cache.Filter[K, V], agg cache.Aggregator[K, V]) (any, error) {
	b.mu.RLock()
	entries := make(map[K]cache.Value[V])

	for k, v := range b.data {
		if filter == nil || filter.Evaluate(k, v) {
			entries[k] = cache.Present(v)
		}
	}
	b.mu.RUnlock()

	return agg(entries)
}

// AddIndex and RemoveIndex don't maintain a real secondary index structure:
// local eviction policies and statistics formatting are explicitly out of
// scope, and these exist only so callers can exercise the contract.
func (b *Backend[K, V]) AddIndex(_ context.Context, extractorName string, ordered bool) error {
	b.indexMu.Lock()
	b.indexes[extractorName] = ordered
	b.indexMu.Unlock()

	return nil
}

func (b *Backend[K, V]) RemoveIndex(_ context.Context, extractorName string) error {
	b.indexMu.Lock()
	delete(b.indexes, extractorName)
	b.indexMu.Unlock()

	return nil
}

// Subscribe implements the subscription contract, including priming: a
// synchronous listener asking for Priming receives exactly one synthetic
// Inserted event carrying the current value/absence before this call
// returns, and, if InKeySet is set, one such event per enumerated key,
// delivered atomically with respect to concurrent mutation of the store.
func (b *Backend[K, V]) Subscribe(_ context.Context, sub cache.Subscription[K, V], listener *cache.ListenerDescriptor[K, V]) (func(), error) {
	entry := &subEntry[K, V]{kind: sub.Kind, key: sub.Key, filter: sub.Filter, listener: listener}

	b.subMu.Lock()
	if sub.Kind == cache.SubscribeKey {
		b.keySubs[sub.Key] = append(b.keySubs[sub.Key], entry)
	} else {
		b.allSubs = append(b.allSubs, entry)
	}
	b.subMu.Unlock()

	unsub := func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()

		if sub.Kind == cache.SubscribeKey {
			list := b.keySubs[sub.Key]
			for i, e := range list {
				if e == entry {
					b.keySubs[sub.Key] = append(list[:i], list[i+1:]...)
					break
				}
			}

			return
		}

		for i, e := range b.allSubs {
			if e == entry {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				break
			}
		}
	}

	if sub.Priming {
		b.deliverPriming(sub, listener)
	}

	return unsub, nil
}

func (b *Backend[K, V]) deliverPriming(sub cache.Subscription[K, V], listener *cache.ListenerDescriptor[K, V]) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	prime := func(key K) {
		value := cache.NoValue[V]()
		if v, ok := b.data[key]; ok {
			value = cache.Present(v)
		}

		listener.Handle(cache.Event[K, V]{Type: cache.Inserted, Key: key, NewValue: value, Synthetic: true, Priming: true})
	}

	if len(sub.InKeySet) > 0 {
		for _, k := range sub.InKeySet {
			prime(k)
		}

		return
	}

	prime(sub.Key)
}

func (b *Backend[K, V]) SubscribeDeactivation(handle func(cache.DeactivationEvent)) func() {
	return b.deactivation.Register(handle)
}

// KeySubscriberCount reports how many listeners are currently subscribed to
// key, for tests that need to observe subscription teardown.
func (b *Backend[K, V]) KeySubscriberCount(key K) int {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	return len(b.keySubs[key])
}

func (b *Backend[K, V]) SupportsPriming() bool {
	return true
}

// deliver fans e out to every matching subscription, synchronously on the
// calling goroutine.
func (b *Backend[K, V]) deliver(e cache.Event[K, V]) {
	b.subMu.Lock()
	keySubs := append([]*subEntry[K, V]{}, b.keySubs[e.Key]...)
	allSubs := append([]*subEntry[K, V]{}, b.allSubs...)
	b.subMu.Unlock()

	for _, s := range keySubs {
		s.listener.Handle(e)
	}

	for _, s := range allSubs {
		if b.matches(s, e) {
			s.listener.Handle(e)
		}
	}
}

// matches implements the subscription filter vocabulary: a plain
// Filter is evaluated against the event's current value, while an
// EventFilter additionally gates on whether the event's type (and, for
// Updated, whether the key entered/left/stayed within the inner filter)
// is in the subscribed mask.  Inserted is gated on the new value satisfying
// the inner filter and Deleted on the old value having satisfied it, so a
// filtered subscriber never hears about keys that were never in its view.
func (b *Backend[K, V]) matches(s *subEntry[K, V], e cache.Event[K, V]) bool {
	if s.filter == nil {
		return true
	}

	ef, ok := s.filter.(cache.EventFilter[K, V])
	if !ok {
		value := e.NewValue
		if value.Absent {
			value = e.OldValue
		}

		if value.Absent {
			return false
		}

		return s.filter.Evaluate(e.Key, value.Val)
	}

	inner := ef.Inner
	if inner == nil {
		inner = cache.FilterFunc[K, V](func(K, V) bool { return true })
	}

	bit, ok := maskBitFor(e, inner)
	if !ok {
		return false
	}

	return ef.Mask.Has(bit)
}

func maskBitFor[K comparable, V any](e cache.Event[K, V], inner cache.Filter[K, V]) (cache.EventMask, bool) {
	switch e.Type {
	case cache.Inserted:
		if e.NewValue.Absent || !inner.Evaluate(e.Key, e.NewValue.Val) {
			return 0, false
		}

		return cache.MaskInserted, true
	case cache.Deleted:
		if e.OldValue.Absent || !inner.Evaluate(e.Key, e.OldValue.Val) {
			return 0, false
		}

		return cache.MaskDeleted, true
	case cache.Updated:
		oldIn := !e.OldValue.Absent && inner.Evaluate(e.Key, e.OldValue.Val)
		newIn := !e.NewValue.Absent && inner.Evaluate(e.Key, e.NewValue.Val)

		switch {
		case !oldIn && newIn:
			return cache.MaskUpdatedEntered, true
		case oldIn && !newIn:
			return cache.MaskUpdatedLeft, true
		case oldIn && newIn:
			return cache.MaskUpdatedWithin, true
		default:
			return 0, false
		}
	default:
		return 0, false
	}
}
