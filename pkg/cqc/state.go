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

// Package cqc implements the ContinuousQueryCache: a materialized,
// continuously maintained view of a BackCache filtered by a predicate, with
// its own (re)synchronization state machine, deferred-event reconciliation,
// and listener fan-out.
package cqc

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// CacheState is the view's synchronization state.
type CacheState int

const (
	Disconnected CacheState = iota
	Configuring
	Configured
	Synchronized
)

func (s CacheState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Configuring:
		return "Configuring"
	case Configured:
		return "Configured"
	case Synchronized:
		return "Synchronized"
	default:
		return "Unknown"
	}
}

// DisconnectedAction is what a caller touching a Disconnected CQC should
// do, per the ReconnectInterval semantics.
type DisconnectedAction int

const (
	// ActionLocalRead answers from internal storage without reconfiguring;
	// the reconnect window hasn't elapsed yet.
	ActionLocalRead DisconnectedAction = iota
	// ActionReconfigure triggers (re)configuration before answering.
	ActionReconfigure
	// ActionFailFast rejects the call immediately: ReconnectInterval is 0.
	ActionFailFast
)

// StateMachine tracks CacheState plus the bookkeeping ReconnectInterval
// needs: when the cache last went Disconnected.
type StateMachine struct {
	mu                sync.RWMutex
	state             CacheState
	disconnectedAt    time.Time
	reconnectInterval time.Duration
	everSynchronized  bool

	// clock measures the reconnect window; NewStateMachine sets the real
	// clock and nothing replaces it.
	clock clock.PassiveClock
}

// NewStateMachine starts Disconnected (a freshly
// constructed CQC has registered no listeners yet).
func NewStateMachine(reconnectInterval time.Duration) *StateMachine {
	return &StateMachine{
		state:             Disconnected,
		reconnectInterval: reconnectInterval,
		clock:             clock.RealClock{},
	}
}

func (s *StateMachine) State() CacheState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// DisconnectedAction evaluates the ReconnectInterval rule for a
// call arriving while Disconnected. A CQC that has never reached
// Synchronized has no prior sync to fail fast in lieu of — ReconnectInterval
// governs how long a *previously* synchronized view may serve stale local
// reads after losing its connection, not whether the very first
// (re)configuration attempt runs at all. So the "fail fast" branch applies
// only once there has been a prior Synchronized state; the initial
// configure always proceeds regardless of ReconnectInterval, or a
// ReconnectInterval=0 CQC would never leave Disconnected (every call would
// observe ErrInactive forever, since nothing else ever triggers reconfigure).
func (s *StateMachine) DisconnectedAction() DisconnectedAction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.everSynchronized {
		return ActionReconfigure
	}

	if s.reconnectInterval <= 0 {
		return ActionFailFast
	}

	if s.clock.Since(s.disconnectedAt) < s.reconnectInterval {
		return ActionLocalRead
	}

	return ActionReconfigure
}

// TryEnterConfiguring transitions to Configuring unless already there,
// so concurrent reconfiguration attempts collapse onto a single in-flight
// sequence.
func (s *StateMachine) TryEnterConfiguring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Configuring {
		return false
	}

	s.state = Configuring

	return true
}

func (s *StateMachine) EnterConfigured() {
	s.mu.Lock()
	s.state = Configured
	s.mu.Unlock()
}

func (s *StateMachine) EnterSynchronized() {
	s.mu.Lock()
	s.state = Synchronized
	s.everSynchronized = true
	s.mu.Unlock()
}

// EnterDisconnected records when the disconnect happened, starting the
// ReconnectInterval window.
func (s *StateMachine) EnterDisconnected() {
	s.mu.Lock()
	s.state = Disconnected
	s.disconnectedAt = s.clock.Now()
	s.mu.Unlock()
}
