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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats are the cache's hit/miss/invalidation counters.
type Stats struct {
	Hits             atomic.Int64
	Misses           atomic.Int64
	InvalidationHits atomic.Int64
}

// CompositeCache is a read-through/write-through front/back composition.
// It exclusively owns its FrontCache and ControlTable; the BackCache is
// shared.
type CompositeCache[K comparable, V any] struct {
	back  BackCache[K, V]
	front *FrontCache[K, V]

	control    *ControlTable[K, V]
	strategy   *StrategyState
	dispatcher *EventDispatcher

	active atomic.Bool
	stats  Stats

	keySubsMu sync.Mutex
	keySubs   map[K]func()

	globalMu    sync.Mutex
	globalUnsub func()

	deactivation      *DeactivationFanout
	deactivationUnsub func()
}

// NewCompositeCache constructs a cache targeting the given invalidation
// strategy.  The strategy is not activated until the first operation that
// needs it.
func NewCompositeCache[K comparable, V any](back BackCache[K, V], target Strategy) *CompositeCache[K, V] {
	c := &CompositeCache[K, V]{
		back:         back,
		front:        NewFrontCache[K, V](),
		control:      NewControlTable[K, V](),
		strategy:     NewStrategyState(target),
		dispatcher:   NewEventDispatcher(),
		keySubs:      make(map[K]func()),
		deactivation: NewDeactivationFanout(),
	}

	c.deactivation.Register(c.onDeactivation)
	c.active.Store(true)

	return c
}

func (c *CompositeCache[K, V]) Stats() *Stats {
	return &c.stats
}

func (c *CompositeCache[K, V]) checkActive(op string) error {
	if !c.active.Load() {
		return newOpError(op, "", ErrInactive, nil)
	}

	return nil
}

// validateRead applies the centrepiece validation rule to a read:
// valid iff no event was observed, or exactly one event was observed and it
// is a synthetic Insert (the priming pattern).  Anything else means a
// concurrent external mutation raced the read.
func validateRead[K comparable, V any](events []Event[K, V]) bool {
	if len(events) == 0 {
		return true
	}

	if len(events) == 1 && events[0].Type == Inserted && events[0].Synthetic {
		return true
	}

	return false
}

// validateWrite applies the validation rule to a write: valid iff exactly
// one Insert/Update was observed, or zero events where zero is all that can
// legitimately happen — under None nothing is subscribed so no event can
// ever arrive, and under the broad-coverage strategies (All/Logical) the
// write's own echo may have already been folded into the front by direct
// application before the pending list was consulted.
func validateWrite[K comparable, V any](events []Event[K, V], zeroEventsValid bool) bool {
	if len(events) == 0 {
		return zeroEventsValid
	}

	if len(events) == 1 && (events[0].Type == Inserted || events[0].Type == Updated) {
		return true
	}

	return false
}

// Get returns the value for key, from the front when resident and via a
// validated back read otherwise.
func (c *CompositeCache[K, V]) Get(ctx context.Context, key K) (result Value[V], err error) {
	if v, ok := c.front.Get(key); ok {
		c.stats.Hits.Add(1)
		return Present(v), nil
	}

	ctx, span := StartSpan(ctx, "composite.Get")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("get"); err != nil {
		return Value[V]{}, err
	}

	if err = c.control.Lock(ctx, key); err != nil {
		return Value[V]{}, err
	}
	defer c.control.Unlock(key)

	list := NewPendingEventList[K, V]()
	c.control.Put(key, list)
	defer c.control.Remove(key)

	c.control.RLockGlobal()
	defer c.control.RUnlockGlobal()

	if err = c.ensureStrategyActive(ctx); err != nil {
		return Value[V]{}, err
	}

	value, err := c.resolveGet(ctx, key, list)
	if err != nil {
		c.stats.Misses.Add(1)
		return Value[V]{}, err
	}

	if value.Absent {
		// Absence is never cached; the front is left as is.
		return value, nil
	}

	if !validateRead(list.Snapshot()) {
		c.front.Delete(key)
		c.stats.InvalidationHits.Add(1)

		return value, nil
	}

	c.front.Put(key, value.Val)
	c.stats.Misses.Add(1)

	return value, nil
}

// resolveGet performs the priming short-circuit for Present/Auto before
// falling back to a normal back-get.
func (c *CompositeCache[K, V]) resolveGet(ctx context.Context, key K, list *PendingEventList[K, V]) (Value[V], error) {
	if c.strategy.Target() == StrategyPresent {
		primed, ok, err := c.ensureKeySubscription(ctx, key, list)
		if err != nil {
			return Value[V]{}, err
		}

		if ok {
			return primed.NewValue, nil
		}
	}

	return c.back.Get(ctx, key)
}

// GetAll is the batched read: locks are acquired non-blockingly,
// keys that cannot be locked are fetched but never placed in the front.
// Like Get, it must activate the configured strategy before calling the
// back — otherwise a workload that only ever calls GetAll/InsertAll would
// never register a back subscription and every key it places in the front
// would go uninvalidated, breaking coherence.
func (c *CompositeCache[K, V]) GetAll(ctx context.Context, keys []K) (result map[K]Value[V], err error) {
	ctx, span := StartSpan(ctx, "composite.GetAll")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("getAll"); err != nil {
		return nil, err
	}

	result = make(map[K]Value[V], len(keys))
	remaining := make([]K, 0, len(keys))

	for _, k := range keys {
		if v, ok := c.front.Get(k); ok {
			c.stats.Hits.Add(1)
			result[k] = Present(v)

			continue
		}

		remaining = append(remaining, k)
	}

	if len(remaining) == 0 {
		return result, nil
	}

	locked := make([]K, 0, len(remaining))

	for _, k := range remaining {
		if c.control.TryLock(k, 0) {
			locked = append(locked, k)
			c.control.Put(k, NewPendingEventList[K, V]())
		}
	}

	defer func() {
		for _, k := range locked {
			c.control.Remove(k)
			c.control.Unlock(k)
		}
	}()

	c.control.RLockGlobal()
	defer c.control.RUnlockGlobal()

	if err = c.ensureStrategyActive(ctx); err != nil {
		return nil, err
	}

	// Under Present, register the same per-key priming subscription Get
	// would (resolveGet/ensureKeySubscription): a primed key's value comes
	// back on the subscribe call itself, sparing a redundant back.GetAll
	// round trip for it and, critically, giving every key this call places
	// in the front a live invalidation subscription.
	primed := make(map[K]Value[V])
	toFetch := remaining

	if c.strategy.Target() == StrategyPresent {
		toFetch = make([]K, 0, len(remaining))

		for _, k := range remaining {
			list := c.control.Get(k)
			if list == nil {
				toFetch = append(toFetch, k)
				continue
			}

			ev, ok, subErr := c.ensureKeySubscription(ctx, k, list)
			if subErr != nil {
				err = subErr
				return nil, err
			}

			if ok {
				primed[k] = ev.NewValue
				continue
			}

			toFetch = append(toFetch, k)
		}
	}

	for k, v := range primed {
		result[k] = v

		if !v.Absent {
			c.front.Put(k, v.Val)
		}
	}

	if len(toFetch) == 0 {
		return result, nil
	}

	values, err := c.back.GetAll(ctx, toFetch)
	if err != nil {
		return nil, err
	}

	lockedSet := make(map[K]struct{}, len(locked))
	for _, k := range locked {
		lockedSet[k] = struct{}{}
	}

	for k, v := range values {
		result[k] = v

		if _, ok := lockedSet[k]; !ok || v.Absent {
			continue
		}

		list := c.control.Get(k)
		if list == nil || !validateRead(list.Snapshot()) {
			if list != nil {
				c.stats.InvalidationHits.Add(1)
			}

			continue
		}

		c.front.Put(k, v.Val)
	}

	return result, nil
}

// Insert writes through to the back and updates the front when the
// pending events validate.
func (c *CompositeCache[K, V]) Insert(ctx context.Context, key K, value V, ttl time.Duration) (result Value[V], err error) {
	ctx, span := StartSpan(ctx, "composite.Insert")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("insert"); err != nil {
		return Value[V]{}, err
	}

	if err = c.control.Lock(ctx, key); err != nil {
		return Value[V]{}, err
	}
	defer c.control.Unlock(key)

	target := c.strategy.Target()
	broadCoverage := target == StrategyAll || target == StrategyLogical

	// None (no event can ever arrive), a key already resident in the
	// front, and the broad-coverage strategies all collect events for
	// validation; a Present-strategy key with no front entry (hence no
	// per-key subscription) installs IGNORE since any event that did show
	// up couldn't be attributed.
	var list *PendingEventList[K, V]

	if _, present := c.front.Get(key); target == StrategyNone || present || broadCoverage {
		list = NewPendingEventList[K, V]()
	} else {
		list = NewIgnoreList[K, V]()
	}

	c.control.Put(key, list)
	defer c.control.Remove(key)

	c.control.RLockGlobal()
	defer c.control.RUnlockGlobal()

	if err = c.ensureStrategyActive(ctx); err != nil {
		return Value[V]{}, err
	}

	prev, err := c.back.Insert(ctx, key, value, ttl)
	if err != nil {
		return Value[V]{}, err
	}

	if list.Ignore() {
		return prev, nil
	}

	if validateWrite(list.Snapshot(), target == StrategyNone || broadCoverage) {
		c.front.Put(key, value)
	} else {
		c.front.Delete(key)
		c.stats.InvalidationHits.Add(1)
	}

	return prev, nil
}

// InsertAll is the batched write: unlockable keys degrade to
// relying on the event stream for eventual convergence. Activates the
// strategy up front for the same reason GetAll does.
func (c *CompositeCache[K, V]) InsertAll(ctx context.Context, entries map[K]V) (err error) {
	ctx, span := StartSpan(ctx, "composite.InsertAll")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("insertAll"); err != nil {
		return err
	}

	target := c.strategy.Target()
	broadCoverage := target == StrategyAll || target == StrategyLogical

	locked := make([]K, 0, len(entries))

	for k := range entries {
		if !c.control.TryLock(k, 0) {
			continue
		}

		locked = append(locked, k)

		// Same list-kind choice as single-key Insert.
		if _, present := c.front.Get(k); target == StrategyNone || present || broadCoverage {
			c.control.Put(k, NewPendingEventList[K, V]())
		} else {
			c.control.Put(k, NewIgnoreList[K, V]())
		}
	}

	defer func() {
		for _, k := range locked {
			c.control.Remove(k)
			c.control.Unlock(k)
		}
	}()

	c.control.RLockGlobal()
	defer c.control.RUnlockGlobal()

	if err = c.ensureStrategyActive(ctx); err != nil {
		return err
	}

	if err = c.back.InsertAll(ctx, entries); err != nil {
		return err
	}

	lockedSet := make(map[K]struct{}, len(locked))
	for _, k := range locked {
		lockedSet[k] = struct{}{}
	}

	for k, v := range entries {
		if _, ok := lockedSet[k]; !ok {
			continue
		}

		list := c.control.Get(k)
		if list == nil || list.Ignore() {
			continue
		}

		if validateWrite(list.Snapshot(), target == StrategyNone || broadCoverage) {
			c.front.Put(k, v)
		} else {
			c.front.Delete(k)
			c.stats.InvalidationHits.Add(1)
		}
	}

	return nil
}

// Remove deletes key from both front and back.
func (c *CompositeCache[K, V]) Remove(ctx context.Context, key K) (err error) {
	ctx, span := StartSpan(ctx, "composite.Remove")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("remove"); err != nil {
		return err
	}

	if err = c.control.Lock(ctx, key); err != nil {
		return err
	}
	defer c.control.Unlock(key)

	if c.strategy.Target() != StrategyNone {
		c.control.Put(key, NewIgnoreList[K, V]())
		defer c.control.Remove(key)
	}

	c.front.Delete(key)

	if c.strategy.Target() == StrategyPresent {
		c.unsubscribeKey(key)
	}

	err = c.back.Remove(ctx, key)

	return err
}

// Clear tears down listeners, resets the front and strategy, and wipes
// the back, all under GLOBAL.
func (c *CompositeCache[K, V]) Clear(ctx context.Context) (err error) {
	ctx, span := StartSpan(ctx, "composite.Clear")
	defer func() { EndSpan(span, err) }()

	if err = c.checkActive("clear"); err != nil {
		return err
	}

	if !c.control.LockGlobalTimeout(time.Second, 10*time.Millisecond) {
		// Timed out acquiring GLOBAL: fall through to a best-effort clear
		// with no strategy coordination.
		err = c.back.Clear(ctx)
		return err
	}
	defer c.control.UnlockGlobal()

	c.teardownListeners()
	c.front.Clear()
	c.strategy.Reset()

	err = c.back.Clear(ctx)

	return err
}

// Release shuts the cache down with a single non-blocking GLOBAL attempt,
// refusing with ErrBusy if the cache is in active use.
func (c *CompositeCache[K, V]) Release() error {
	if !c.control.TryLockGlobal() {
		return newOpError("release", "", ErrBusy, nil)
	}
	defer c.control.UnlockGlobal()

	if !c.active.CompareAndSwap(true, false) {
		return nil
	}

	c.teardownListeners()
	c.dispatcher.Stop()
	c.front.Clear()

	return nil
}

func (c *CompositeCache[K, V]) ensureStrategyActive(ctx context.Context) error {
	return c.strategy.EnsureActive(func(target Strategy) error {
		return c.activateStrategy(ctx, target)
	})
}

// activateStrategy wires up back subscriptions for the target strategy.
func (c *CompositeCache[K, V]) activateStrategy(ctx context.Context, target Strategy) error {
	if target == StrategyNone {
		return nil
	}

	c.globalMu.Lock()
	defer c.globalMu.Unlock()

	c.deactivationUnsub = c.back.SubscribeDeactivation(c.deactivation.Dispatch)

	switch target {
	case StrategyAll, StrategyLogical:
		listener := &ListenerDescriptor[K, V]{
			ID:          uuid.NewString(),
			Role:        Invalidate,
			Synchronous: true,
			Handle:      c.onEvent,
		}

		unsub, err := c.back.Subscribe(ctx, Subscription[K, V]{Kind: SubscribeAll}, listener)
		if err != nil {
			return err
		}

		c.globalUnsub = unsub
	case StrategyPresent:
		// A key evicted from the front has no more use for its per-key back
		// subscription; tear it down here rather than only on explicit
		// Remove, or every invalidation-driven eviction leaks a subscription
		// for the life of the cache.
		c.front.RegisterEvictionHandle(func(key any) {
			if k, ok := key.(K); ok {
				c.unsubscribeKey(k)
			}
		})
	}

	return nil
}

// ensureKeySubscription lazily registers a per-key Present subscription,
// falling back to a non-priming listener when the back doesn't support
// priming.
func (c *CompositeCache[K, V]) ensureKeySubscription(ctx context.Context, key K, list *PendingEventList[K, V]) (Event[K, V], bool, error) {
	c.keySubsMu.Lock()
	if _, ok := c.keySubs[key]; ok {
		c.keySubsMu.Unlock()
		return Event[K, V]{}, false, nil
	}

	c.keySubs[key] = nil
	c.keySubsMu.Unlock()

	listener := &ListenerDescriptor[K, V]{
		ID:          uuid.NewString(),
		Role:        Priming,
		Synchronous: true,
		Handle:      c.onEvent,
	}

	sub := Subscription[K, V]{Kind: SubscribeKey, Key: key, Priming: true}

	unsub, err := c.back.Subscribe(ctx, sub, listener)
	if errors.Is(err, ErrUnsupported) {
		sub.Priming = false
		listener.Role = Invalidate

		unsub, err = c.back.Subscribe(ctx, sub, listener)
	}

	if err != nil {
		c.keySubsMu.Lock()
		delete(c.keySubs, key)
		c.keySubsMu.Unlock()

		return Event[K, V]{}, false, err
	}

	c.keySubsMu.Lock()
	c.keySubs[key] = unsub
	c.keySubsMu.Unlock()

	if ev, ok := list.PopPriming(); ok {
		return ev, true, nil
	}

	return Event[K, V]{}, false, nil
}

func (c *CompositeCache[K, V]) unsubscribeKey(key K) {
	c.keySubsMu.Lock()
	unsub, ok := c.keySubs[key]
	delete(c.keySubs, key)
	c.keySubsMu.Unlock()

	if ok && unsub != nil {
		unsub()
	}
}

func (c *CompositeCache[K, V]) teardownListeners() {
	c.globalMu.Lock()
	if c.globalUnsub != nil {
		c.globalUnsub()
		c.globalUnsub = nil
	}

	if c.deactivationUnsub != nil {
		c.deactivationUnsub()
		c.deactivationUnsub = nil
	}
	c.globalMu.Unlock()

	c.keySubsMu.Lock()
	subs := c.keySubs
	c.keySubs = make(map[K]func())
	c.keySubsMu.Unlock()

	for _, unsub := range subs {
		if unsub != nil {
			unsub()
		}
	}
}

// onEvent is the synchronous, core-owned listener fed by both the global
// and per-key subscriptions.
func (c *CompositeCache[K, V]) onEvent(e Event[K, V]) {
	if c.strategy.Target() == StrategyLogical && e.Type == Deleted && e.Synthetic {
		return
	}

	if list := c.control.Get(e.Key); list != nil {
		list.Append(e)
		return
	}

	c.applyEventDirect(e)
}

// applyEventDirect mutates the front for a key with no in-flight operation.
// Only keys the front already tracks are touched.
func (c *CompositeCache[K, V]) applyEventDirect(e Event[K, V]) {
	if !c.front.Has(e.Key) {
		return
	}

	if e.Type == Deleted || e.NewValue.Absent {
		c.front.Delete(e.Key)
		return
	}

	c.front.Put(e.Key, e.NewValue.Val)
}

// onDeactivation reacts to the back's destroy/truncate signals: Deleted
// (destroy) resets front and strategy; Updated (truncate) clears the front
// but preserves strategy.
func (c *CompositeCache[K, V]) onDeactivation(e DeactivationEvent) {
	switch e.Type {
	case Deleted:
		c.teardownListeners()
		c.front.Clear()
		c.strategy.Reset()
	case Updated:
		c.front.Clear()
	default:
	}
}
