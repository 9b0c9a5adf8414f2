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
	"github.com/unikorn-cloud/nearcache/pkg/cache"
)

// AddCacheListener registers against internal storage. A listener that is
// non-lite or filtered forces CacheValues = true; a priming listener receives the current contents
// synchronously, inline, before this call returns. Non-priming listeners
// run synchronously or via the EventDispatcher according to synchronous.
func (c *ContinuousQueryCache[K, V]) AddCacheListener(id string, synchronous, lite, priming bool, filter cache.Filter[K, V], handle func(cache.Event[K, V])) func() {
	if !lite || filter != nil {
		c.promoteCacheValues()
	}

	wrapped := handle

	if filter != nil {
		wrapped = func(e cache.Event[K, V]) {
			if filter.Evaluate(e.Key, e.NewValue.Val) {
				handle(e)
			}
		}
	}

	descriptor := &cache.ListenerDescriptor[K, V]{
		ID:          id,
		Role:        cache.AddToView,
		Synchronous: synchronous,
		Lite:        lite,
		Handle:      wrapped,
	}

	c.listenersMu.Lock()
	c.listeners = append(c.listeners, descriptor)
	c.listenersMu.Unlock()

	if priming {
		for k, v := range c.storage.Entries() {
			if filter != nil && !filter.Evaluate(k, v) {
				continue
			}

			wrapped(cache.Event[K, V]{
				Type:      cache.Inserted,
				Key:       k,
				NewValue:  cache.Present(v),
				Synthetic: true,
				Priming:   true,
			})
		}
	}

	return func() { c.RemoveCacheListener(id) }
}

// RemoveCacheListener unregisters a previously added listener by ID.
func (c *ContinuousQueryCache[K, V]) RemoveCacheListener(id string) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for i, l := range c.listeners {
		if l.ID == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// promoteCacheValues is the one-way ratchet for CacheValues: it can move
// false → true (when a listener demands it) but never back, mirroring the
// ReadOnly invariant. Flipping it forces a reconfigure since the
// bulk-load and add-listener mask both depend on CacheValues: the view is
// put back to Disconnected as if it had never synchronized, so the next use
// reconfigures regardless of ReconnectInterval.
func (c *ContinuousQueryCache[K, V]) promoteCacheValues() {
	if c.cacheValues.CompareAndSwap(false, true) {
		c.state.mu.Lock()
		c.state.state = Disconnected
		c.state.everSynchronized = false
		c.state.mu.Unlock()
	}
}

// fanout delivers e to every registered cache listener, synchronously or
// via the EventDispatcher per each listener's Synchronous flag.
func (c *ContinuousQueryCache[K, V]) fanout(e cache.Event[K, V]) {
	c.listenersMu.Lock()
	listeners := make([]*cache.ListenerDescriptor[K, V], len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.Unlock()

	for _, l := range listeners {
		l := l

		if l.Synchronous {
			l.Handle(e)
			continue
		}

		c.dispatcher.Enqueue(func() { l.Handle(e) })
	}
}
