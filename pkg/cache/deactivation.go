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

import "sync"

// DeactivationHandler reacts to a single destroy/truncate signal from the
// back.
type DeactivationHandler func(DeactivationEvent)

// DeactivationFanout watches one back deactivation channel and fans each
// signal out to every locally registered reset action, the same shape as a
// consumer watching one deletion stream and propagating it to each locally
// owned dependent, generalised here from a single Kubernetes resource list
// to an arbitrary set of reset callbacks. CompositeCache and CQC each own
// one fanout; the back itself only ever sees a single Subscribe call.
type DeactivationFanout struct {
	mu       sync.Mutex
	handlers map[int]DeactivationHandler
	nextID   int
}

func NewDeactivationFanout() *DeactivationFanout {
	return &DeactivationFanout{handlers: make(map[int]DeactivationHandler)}
}

// Register adds h and returns a func that removes it again.
func (f *DeactivationFanout) Register(h DeactivationHandler) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = h
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

// Dispatch fans e out to every registered handler.  Handlers are held in a
// map, so the order they are called in is unspecified (with a single
// handler, the common case, order is moot).
func (f *DeactivationFanout) Dispatch(e DeactivationEvent) {
	f.mu.Lock()
	handlers := make([]DeactivationHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}
