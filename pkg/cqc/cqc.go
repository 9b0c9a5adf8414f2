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

package cqc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
)

func opErr(op string, err error) error {
	return fmt.Errorf("cqc: %s: %w", op, err)
}

// ContinuousQueryCache is a materialized, continuously maintained view of
// the back cache: the set of entries satisfying a predicate F, optionally
// run through a transformer T that forces the view read-only.
type ContinuousQueryCache[K comparable, V any] struct {
	back   cache.BackCache[K, V]
	filter cache.Filter[K, V]

	cacheValues atomic.Bool
	transformer cache.Transformer[V]
	readOnly    bool

	storage *Storage[K, V]
	state   *StateMachine

	released atomic.Bool

	// deferred is reassigned by reconfigure on every (re)configuration while
	// onAddEvent/onRemoveEvent read it concurrently from the back cache's
	// dispatch goroutine, so the pointer itself needs atomic access.
	deferred atomic.Pointer[DeferredEventSet[K]]

	control    *cache.ControlTable[K, V]
	dispatcher *cache.EventDispatcher

	deactivation *cache.DeactivationFanout

	reconfigMu sync.Mutex

	subsMu            sync.Mutex
	removeUnsub       func()
	addUnsub          func()
	deactivationUnsub func()

	listenersMu sync.Mutex
	listeners   []*cache.ListenerDescriptor[K, V]
}

// New constructs a CQC view. A non-nil transformer forces the view
// read-only.
func New[K comparable, V any](back cache.BackCache[K, V], filter cache.Filter[K, V], cacheValues bool, transformer cache.Transformer[V], reconnectInterval time.Duration) *ContinuousQueryCache[K, V] {
	c := &ContinuousQueryCache[K, V]{
		back:         back,
		filter:       filter,
		transformer:  transformer,
		readOnly:     transformer != nil,
		storage:      NewStorage[K, V](),
		state:        NewStateMachine(reconnectInterval),
		control:      cache.NewControlTable[K, V](),
		dispatcher:   cache.NewEventDispatcher(),
		deactivation: cache.NewDeactivationFanout(),
	}

	c.deferred.Store(NewDeferredEventSet[K]())
	c.cacheValues.Store(cacheValues)
	c.deactivation.Register(c.onDeactivation)

	return c
}

func (c *ContinuousQueryCache[K, V]) State() CacheState {
	return c.state.State()
}

func (c *ContinuousQueryCache[K, V]) ReadOnly() bool {
	return c.readOnly
}

func (c *ContinuousQueryCache[K, V]) checkWritable(op string) error {
	if c.readOnly {
		return opErr(op, cache.ErrReadOnly)
	}

	return nil
}

// ensureSynchronized implements the ReconnectInterval rule and triggers
// (re)configuration where needed.
func (c *ContinuousQueryCache[K, V]) ensureSynchronized(ctx context.Context) error {
	if c.released.Load() {
		return opErr("ensureSynchronized", cache.ErrInactive)
	}

	if c.state.State() != Disconnected {
		return nil
	}

	switch c.state.DisconnectedAction() {
	case ActionLocalRead:
		return nil
	case ActionFailFast:
		return opErr("ensureSynchronized", cache.ErrInactive)
	default:
		return c.reconfigure(ctx)
	}
}

// Contains reports view membership, answered from internal storage.
func (c *ContinuousQueryCache[K, V]) Contains(ctx context.Context, key K) (ok bool, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Contains")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return false, err
	}

	return c.storage.Contains(key), nil
}

// Get returns the view's value for key, locally when values are cached
// and via the back otherwise.
func (c *ContinuousQueryCache[K, V]) Get(ctx context.Context, key K) (result cache.Value[V], err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Get")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return cache.Value[V]{}, err
	}

	if c.cacheValues.Load() {
		if v, ok := c.storage.Get(key); ok {
			return cache.Present(v), nil
		}

		return cache.NoValue[V](), nil
	}

	if !c.storage.Contains(key) {
		return cache.NoValue[V](), nil
	}

	return c.back.Get(ctx, key)
}

// GetAll is the batched form of Get.
func (c *ContinuousQueryCache[K, V]) GetAll(ctx context.Context, keys []K) (out map[K]cache.Value[V], err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.GetAll")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	out = make(map[K]cache.Value[V], len(keys))

	if c.cacheValues.Load() {
		for _, k := range keys {
			if v, ok := c.storage.Get(k); ok {
				out[k] = cache.Present(v)
			}
		}

		return out, nil
	}

	inView := make([]K, 0, len(keys))

	for _, k := range keys {
		if c.storage.Contains(k) {
			inView = append(inView, k)
		}
	}

	values, err := c.back.GetAll(ctx, inView)
	if err != nil {
		return nil, err
	}

	for k, v := range values {
		if v.Absent || !c.filter.Evaluate(k, v.Val) {
			continue
		}

		out[k] = v
	}

	return out, nil
}

// GetKeys returns the view's keys matching filter.
func (c *ContinuousQueryCache[K, V]) GetKeys(ctx context.Context, filter cache.Filter[K, V]) ([]K, error) {
	entries, err := c.getEntries(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]K, 0, len(entries))
	for k := range entries {
		out = append(out, k)
	}

	return out, nil
}

// GetValues returns the view's values matching filter.
func (c *ContinuousQueryCache[K, V]) GetValues(ctx context.Context, filter cache.Filter[K, V]) ([]V, error) {
	entries, err := c.getEntries(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]V, 0, len(entries))
	for _, v := range entries {
		out = append(out, v)
	}

	return out, nil
}

// GetEntries returns the view's entries matching filter.  Ordered
// iteration is deliberately not offered; the map return makes that
// explicit rather than promising an order this type never provides.
func (c *ContinuousQueryCache[K, V]) GetEntries(ctx context.Context, filter cache.Filter[K, V]) (map[K]V, error) {
	return c.getEntries(ctx, filter)
}

func (c *ContinuousQueryCache[K, V]) getEntries(ctx context.Context, filter cache.Filter[K, V]) (out map[K]V, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.getEntries")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	merged := cache.Filter[K, V](c.filter)
	if filter != nil {
		merged = Merge[K, V](c.filter, filter)
	}

	if c.cacheValues.Load() {
		out := make(map[K]V)

		for k, v := range c.storage.Entries() {
			if merged.Evaluate(k, v) {
				out[k] = v
			}
		}

		return out, nil
	}

	result, err := c.back.Query(ctx, merged, true)
	if err != nil {
		return nil, err
	}

	out = make(map[K]V, len(result))

	for k, v := range result {
		if v.Absent {
			continue
		}

		out[k] = v.Val
	}

	return out, nil
}

// Insert writes through to the back: forbidden when ReadOnly, rejected with a
// predicate violation if (key, value) doesn't satisfy F. The local view
// updates later via the event stream, not here.
func (c *ContinuousQueryCache[K, V]) Insert(ctx context.Context, key K, value V) (err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Insert")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.checkWritable("insert"); err != nil {
		return err
	}

	if err = c.ensureSynchronized(ctx); err != nil {
		return err
	}

	if !c.filter.Evaluate(key, value) {
		err = opErr("insert", cache.ErrPredicateViolation)
		return err
	}

	if err = c.control.Lock(ctx, key); err != nil {
		return err
	}
	defer c.control.Unlock(key)

	_, err = c.back.Insert(ctx, key, value, 0)

	return err
}

// InsertAll is the batched write-through: every entry is validated against F
// before any back call is made.
func (c *ContinuousQueryCache[K, V]) InsertAll(ctx context.Context, entries map[K]V) (err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.InsertAll")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.checkWritable("insertAll"); err != nil {
		return err
	}

	if err = c.ensureSynchronized(ctx); err != nil {
		return err
	}

	for k, v := range entries {
		if !c.filter.Evaluate(k, v) {
			return opErr("insertAll", cache.ErrPredicateViolation)
		}
	}

	locked := make([]K, 0, len(entries))

	for k := range entries {
		if err := c.control.Lock(ctx, k); err != nil {
			for _, lk := range locked {
				c.control.Unlock(lk)
			}

			return err
		}

		locked = append(locked, k)
	}

	defer func() {
		for _, k := range locked {
			c.control.Unlock(k)
		}
	}()

	return c.back.InsertAll(ctx, entries)
}

// Remove deletes key from the back; the view catches up via the event
// stream.
func (c *ContinuousQueryCache[K, V]) Remove(ctx context.Context, key K) (err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Remove")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.checkWritable("remove"); err != nil {
		return err
	}

	if err = c.ensureSynchronized(ctx); err != nil {
		return err
	}

	if err = c.control.Lock(ctx, key); err != nil {
		return err
	}
	defer c.control.Unlock(key)

	err = c.back.Remove(ctx, key)

	return err
}

// Clear wipes the back and the local view together.
func (c *ContinuousQueryCache[K, V]) Clear(ctx context.Context) (err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Clear")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.checkWritable("clear"); err != nil {
		return err
	}

	if err = c.ensureSynchronized(ctx); err != nil {
		return err
	}

	if err = c.back.Clear(ctx); err != nil {
		return err
	}

	c.storage.Clear()

	return nil
}

// Invoke forwards an entry processor to the back: the key must be in the
// view, or absent
// from the back entirely.
func (c *ContinuousQueryCache[K, V]) Invoke(ctx context.Context, key K, proc cache.Processor[K, V]) (result any, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Invoke")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	if err = c.checkInView(ctx, key); err != nil {
		return nil, err
	}

	result, err = c.back.Invoke(ctx, key, proc)

	return result, err
}

// InvokeAll is the batched form of Invoke.
func (c *ContinuousQueryCache[K, V]) InvokeAll(ctx context.Context, keys []K, proc cache.Processor[K, V]) (result map[K]any, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.InvokeAll")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	for _, k := range keys {
		if err = c.checkInView(ctx, k); err != nil {
			return nil, err
		}
	}

	result, err = c.back.InvokeAll(ctx, keys, proc)

	return result, err
}

// Aggregate forwards an aggregation over an enumerated key set to the back.
func (c *ContinuousQueryCache[K, V]) Aggregate(ctx context.Context, keys []K, agg cache.Aggregator[K, V]) (result any, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.Aggregate")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	for _, k := range keys {
		if err = c.checkInView(ctx, k); err != nil {
			return nil, err
		}
	}

	result, err = c.back.Aggregate(ctx, keys, agg)

	return result, err
}

// AggregateFilter aggregates on the back over a caller filter merged
// with F.
func (c *ContinuousQueryCache[K, V]) AggregateFilter(ctx context.Context, filter cache.Filter[K, V], agg cache.Aggregator[K, V]) (result any, err error) {
	ctx, span := cache.StartSpan(ctx, "cqc.AggregateFilter")
	defer func() { cache.EndSpan(span, err) }()

	if err = c.ensureSynchronized(ctx); err != nil {
		return nil, err
	}

	merged := cache.Filter[K, V](c.filter)
	if filter != nil {
		merged = Merge[K, V](c.filter, filter)
	}

	result, err = c.back.AggregateFilter(ctx, merged, agg)

	return result, err
}

func (c *ContinuousQueryCache[K, V]) checkInView(ctx context.Context, key K) error {
	if c.storage.Contains(key) {
		return nil
	}

	v, err := c.back.Get(ctx, key)
	if err != nil {
		return err
	}

	if !v.Absent {
		return opErr("invoke", cache.ErrOutOfView)
	}

	return nil
}

// AddIndex is forwarded to the back. No local index is built, whether or
// not cacheValues is set: lookups on the view go through the materialized
// map only.
func (c *ContinuousQueryCache[K, V]) AddIndex(ctx context.Context, extractorName string, ordered bool) error {
	return c.back.AddIndex(ctx, extractorName, ordered)
}

// RemoveIndex deliberately does not forward to the back: removing an index
// would affect every other client of the shared back cache.
func (c *ContinuousQueryCache[K, V]) RemoveIndex(_ context.Context, _ string) error {
	return nil
}

// Reset discards the current synchronization and rebuilds the view from
// scratch: listeners re-registered, contents re-loaded.
func (c *ContinuousQueryCache[K, V]) Reset(ctx context.Context) error {
	if c.released.Load() {
		return opErr("reset", cache.ErrInactive)
	}

	c.state.EnterDisconnected()

	return c.reconfigure(ctx)
}

// Release unregisters every back-cache subscription this view owns and
// stops its EventDispatcher.  Teardown failures
// are silently absorbed; any subsequent operation fails with
// ErrInactive.  Idempotent.
func (c *ContinuousQueryCache[K, V]) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}

	c.teardownSubscriptions()
	c.dispatcher.Stop()
	c.storage.Clear()
	c.state.EnterDisconnected()
}

// teardownSubscriptions drops the add/remove/deactivation registrations, if
// any.  Called before re-registering on a reconfigure and on release.
func (c *ContinuousQueryCache[K, V]) teardownSubscriptions() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.removeUnsub != nil {
		c.removeUnsub()
		c.removeUnsub = nil
	}

	if c.addUnsub != nil {
		c.addUnsub()
		c.addUnsub = nil
	}

	if c.deactivationUnsub != nil {
		c.deactivationUnsub()
		c.deactivationUnsub = nil
	}
}

// onDeactivation reacts to the back's destroy/truncate signals.  A
// destroy keeps the (now
// stale) internal storage: a Disconnected CQC serves local reads from it for
// the length of the ReconnectInterval window, and the next reconfigure's
// bulk-load reconciles it anyway.  A truncate clears storage but keeps the
// listeners and state.
func (c *ContinuousQueryCache[K, V]) onDeactivation(e cache.DeactivationEvent) {
	switch e.Type {
	case cache.Deleted:
		c.teardownSubscriptions()
		c.state.EnterDisconnected()
	case cache.Updated:
		c.storage.Clear()
	default:
	}
}
