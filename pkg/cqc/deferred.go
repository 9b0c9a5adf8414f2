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

import "sync"

// DeferredEventSet records keys whose add/remove events arrived during
// (re)configuration. It is a set, not a list: only membership matters, since the reconciliation pass re-reads the current
// value from the back rather than replaying the recorded events.
type DeferredEventSet[K comparable] struct {
	mu   sync.Mutex
	keys map[K]struct{}
}

func NewDeferredEventSet[K comparable]() *DeferredEventSet[K] {
	return &DeferredEventSet[K]{keys: make(map[K]struct{})}
}

// Add records k as deferred. Idempotent.
func (d *DeferredEventSet[K]) Add(k K) {
	d.mu.Lock()
	d.keys[k] = struct{}{}
	d.mu.Unlock()
}

// Drain returns every recorded key and clears the set, for the one-shot
// reconciliation pass at the Configured → Synchronized transition.
func (d *DeferredEventSet[K]) Drain() []K {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]K, 0, len(d.keys))
	for k := range d.keys {
		out = append(out, k)
	}

	d.keys = make(map[K]struct{})

	return out
}

// Remove clears a single key, used once Synchronized when a live event
// supersedes any still-pending deferred reconciliation for that key.
func (d *DeferredEventSet[K]) Remove(k K) {
	d.mu.Lock()
	delete(d.keys, k)
	d.mu.Unlock()
}

func (d *DeferredEventSet[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.keys)
}
