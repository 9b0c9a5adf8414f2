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
	"sync"

	"github.com/go-logr/logr"

	"k8s.io/client-go/util/workqueue"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// dispatchTask is the unit of work the EventDispatcher's queue carries: a
// single listener callback bound to a single event, already closed over so
// the worker doesn't need to know anything about K/V.
type dispatchTask struct {
	handle func()
}

// EventDispatcher is a single-threaded work queue: it
// delivers non-synchronous listener callbacks off the event-ingest thread,
// preserving per-listener ordering because both the queue and the single
// worker are FIFO.  Synchronous listeners (including all Priming
// listeners) never go through here; callers invoke them directly.
type EventDispatcher struct {
	mu      sync.Mutex
	queue   workqueue.TypedInterface[*dispatchTask]
	started bool
	stopped chan struct{}
	logger  logr.Logger
}

// NewEventDispatcher creates a dispatcher.  Its worker is not started until
// the first call to Enqueue.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{logger: log.Log}
}

// Enqueue schedules handle for off-thread delivery, starting the worker on
// first use.
func (d *EventDispatcher) Enqueue(handle func()) {
	d.mu.Lock()
	if !d.started {
		d.queue = workqueue.NewTyped[*dispatchTask]()
		d.stopped = make(chan struct{})
		d.started = true

		go d.run(d.queue, d.stopped)
	}
	queue := d.queue
	d.mu.Unlock()

	queue.Add(&dispatchTask{handle: handle})
}

func (d *EventDispatcher) run(queue workqueue.TypedInterface[*dispatchTask], stopped chan struct{}) {
	defer close(stopped)

	for {
		task, shutdown := queue.Get()
		if shutdown {
			return
		}

		d.deliver(task)
		queue.Done(task)
	}
}

// deliver runs one task, recovering from and logging any panic so a
// misbehaving listener can never take down the dispatcher.
func (d *EventDispatcher) deliver(task *dispatchTask) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(nil, "event listener panicked", "value", r)
		}
	}()

	task.handle()
}

// Stop shuts the dispatcher down and waits for
// the worker to drain and exit.  Safe to call on a dispatcher that was
// never started.
func (d *EventDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}

	d.queue.ShutDown()
	<-d.stopped
	d.started = false
}
