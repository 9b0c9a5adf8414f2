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

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/saga"
)

// reconfigure runs the (re)synchronization sequence: register listeners,
// bulk-load, reconcile deferred events. Concurrent callers serialize on
// reconfigMu; a caller that gets the lock after another has finished finds
// the view Synchronized and returns without running the sequence again. The
// sequence is a textbook action/compensate shape
// (register listeners, bulk-load, unwind everything already registered if
// any step fails), so it runs on pkg/saga rather than reimplementing
// that shape locally.
func (c *ContinuousQueryCache[K, V]) reconfigure(ctx context.Context) error {
	c.reconfigMu.Lock()
	defer c.reconfigMu.Unlock()

	if c.state.State() == Synchronized {
		return nil
	}

	if !c.state.TryEnterConfiguring() {
		return nil
	}

	// Listener registrations from a previous configuration may still be
	// live (a reconfigure triggered by promoteCacheValues or Reset, rather
	// than by a deactivation that already tore them down); drop them before
	// the saga registers fresh ones, or the back accumulates a duplicate
	// set per reconfigure.
	c.teardownSubscriptions()

	deferred := NewDeferredEventSet[K]()
	c.deferred.Store(deferred)

	if err := saga.Run(ctx, &reconfigureHandler[K, V]{cqc: c}); err != nil {
		c.state.EnterDisconnected()

		return fmt.Errorf("cqc: reconfigure failed: %w", err)
	}

	c.state.EnterConfigured()

	c.reconcileDeferred(ctx, deferred.Drain())

	c.state.EnterSynchronized()

	return nil
}

// reconcileDeferred re-reads the whole deferred set: each
// key's re-read is an independent back-cache round trip, so they fan out
// concurrently via errgroup rather than one at a time. A per-key failure is
// swallowed (reconcileKey already treats a back error as "drop the key");
// errgroup here only waits for the fan-out to finish (no concurrency limit
// is set, so each key gets its own goroutine), not for error propagation,
// so Wait's return value is intentionally unused.
func (c *ContinuousQueryCache[K, V]) reconcileDeferred(ctx context.Context, keys []K) {
	var g errgroup.Group

	for _, k := range keys {
		k := k

		g.Go(func() error {
			c.reconcileKey(ctx, k)
			return nil
		})
	}

	_ = g.Wait()
}

// reconfigureHandler adapts the listener-registration and bulk-load steps
// to saga.Handler (allocating the DeferredEventSet and entering Configuring
// already happened in reconfigure before saga.Run is called).
type reconfigureHandler[K comparable, V any] struct {
	cqc *ContinuousQueryCache[K, V]
}

func (h *reconfigureHandler[K, V]) Actions() []saga.Action {
	c := h.cqc

	return []saga.Action{
		saga.NewAction("deactivation-listener", func(_ context.Context) error {
			c.subsMu.Lock()
			c.deactivationUnsub = c.back.SubscribeDeactivation(c.deactivation.Dispatch)
			c.subsMu.Unlock()

			return nil
		}, func(_ context.Context) error {
			c.subsMu.Lock()
			if c.deactivationUnsub != nil {
				c.deactivationUnsub()
				c.deactivationUnsub = nil
			}
			c.subsMu.Unlock()

			return nil
		}),
		saga.NewAction("remove-listener", func(ctx context.Context) error {
			listener := &cache.ListenerDescriptor[K, V]{
				ID:          uuid.NewString(),
				Role:        cache.RemoveFromView,
				Synchronous: true,
				Handle:      c.onRemoveEvent,
			}

			mask := cache.MaskDeleted | cache.MaskUpdatedLeft
			sub := cache.Subscription[K, V]{
				Kind:   cache.SubscribeFilter,
				Filter: cache.NewEventFilter[K, V](mask, c.filter),
			}

			unsub, err := c.back.Subscribe(ctx, sub, listener)
			if err != nil {
				return err
			}

			c.subsMu.Lock()
			c.removeUnsub = unsub
			c.subsMu.Unlock()

			return nil
		}, func(_ context.Context) error {
			c.subsMu.Lock()
			if c.removeUnsub != nil {
				c.removeUnsub()
				c.removeUnsub = nil
			}
			c.subsMu.Unlock()

			return nil
		}),
		saga.NewAction("add-listener", func(ctx context.Context) error {
			mask := cache.MaskInserted | cache.MaskUpdatedEntered
			if c.cacheValues.Load() {
				mask |= cache.MaskUpdatedWithin
			}

			listener := &cache.ListenerDescriptor[K, V]{
				ID:          uuid.NewString(),
				Role:        cache.AddToView,
				Synchronous: true,
				Handle:      c.onAddEvent,
			}

			sub := cache.Subscription[K, V]{
				Kind:   cache.SubscribeFilter,
				Filter: cache.NewEventFilter[K, V](mask, c.filter),
			}

			unsub, err := c.back.Subscribe(ctx, sub, listener)
			if err != nil {
				return err
			}

			c.subsMu.Lock()
			c.addUnsub = unsub
			c.subsMu.Unlock()

			return nil
		}, func(_ context.Context) error {
			c.subsMu.Lock()
			if c.addUnsub != nil {
				c.addUnsub()
				c.addUnsub = nil
			}
			c.subsMu.Unlock()

			return nil
		}),
		saga.NewAction("bulk-load", func(ctx context.Context) error {
			cacheValues := c.cacheValues.Load()

			result, err := c.back.Query(ctx, c.filter, cacheValues)
			if err != nil {
				return err
			}

			values := make(map[K]V, len(result))

			for k, v := range result {
				if v.Absent {
					// Without cached values the back reports keys only;
					// the key is still a member of the view.
					if !cacheValues {
						var zero V
						values[k] = zero
					}

					continue
				}

				value := v.Val
				if c.transformer != nil {
					value = c.transformer(value)
				}

				values[k] = value
			}

			c.storage.Reconcile(values)

			return nil
		}, nil),
	}
}

// reconcileKey re-reads the current value for a deferred key and
// insert or remove depending on whether it still satisfies F.
func (c *ContinuousQueryCache[K, V]) reconcileKey(ctx context.Context, key K) {
	v, err := c.back.Get(ctx, key)
	if err != nil || v.Absent || !c.filter.Evaluate(key, v.Val) {
		c.storage.Delete(key)
		return
	}

	value := v.Val
	if c.transformer != nil {
		value = c.transformer(value)
	}

	c.storage.Put(key, value)
}

// onAddEvent is the add-listener callback. During
// (re)configuration the key is recorded in the DeferredEventSet instead of
// being applied directly.
func (c *ContinuousQueryCache[K, V]) onAddEvent(e cache.Event[K, V]) {
	if c.deferring() {
		c.deferred.Load().Add(e.Key)
		return
	}

	c.deferred.Load().Remove(e.Key)

	if e.NewValue.Absent {
		return
	}

	value := e.NewValue.Val
	if c.transformer != nil {
		value = c.transformer(value)
	}

	c.storage.Put(e.Key, value)
	c.fanout(e)
}

// onRemoveEvent is the remove-listener callback.
func (c *ContinuousQueryCache[K, V]) onRemoveEvent(e cache.Event[K, V]) {
	if c.deferring() {
		c.deferred.Load().Add(e.Key)
		return
	}

	c.deferred.Load().Remove(e.Key)
	c.storage.Delete(e.Key)
	c.fanout(e)
}

func (c *ContinuousQueryCache[K, V]) deferring() bool {
	switch c.state.State() {
	case Configuring, Configured:
		return true
	default:
		return false
	}
}
