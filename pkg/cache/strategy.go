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

// Strategy is the invalidation policy controlling what a CompositeCache
// subscribes to.
type Strategy int

const (
	// StrategyNone does not subscribe to anything; the caller accepts
	// staleness.
	StrategyNone Strategy = iota
	// StrategyPresent installs a per-key subscription the first time a
	// key is touched, with priming.
	StrategyPresent
	// StrategyAll installs one global back subscription covering every
	// key.
	StrategyAll
	// StrategyLogical is StrategyAll with synthetic Delete events
	// filtered out.
	StrategyLogical
)

// StrategyAuto is kept for compatibility with callers that select it by
// name; it is a literal alias of StrategyPresent rather than a distinct
// case.
const StrategyAuto = StrategyPresent

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "None"
	case StrategyPresent:
		return "Present"
	case StrategyAll:
		return "All"
	case StrategyLogical:
		return "Logical"
	default:
		return "Unknown"
	}
}

// StrategyState tracks the target strategy fixed at construction and the
// current strategy, which starts at StrategyNone and advances to target on
// first use.  Advancing is idempotent: once current reaches target
// it never regresses except via Reset, which CompositeCache.clear() calls
// under GLOBAL.
type StrategyState struct {
	mu      sync.Mutex
	target  Strategy
	current Strategy
}

// NewStrategyState fixes the target strategy for the cache's lifetime.
func NewStrategyState(target Strategy) *StrategyState {
	return &StrategyState{target: target, current: StrategyNone}
}

func (s *StrategyState) Target() Strategy {
	return s.target
}

func (s *StrategyState) Current() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// EnsureActive advances current to target, invoking activate exactly once
// for the transition.  Callers hold GLOBAL for reading only; s.mu
// serializes concurrent calls, so activate runs once per transition.  If
// activate fails, current stays at StrategyNone so a later call retries.
func (s *StrategyState) EnsureActive(activate func(target Strategy) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == s.target {
		return nil
	}

	if err := activate(s.target); err != nil {
		return err
	}

	s.current = s.target

	return nil
}

// Reset returns current to StrategyNone, used by clear() and by
// deactivation handling after a destroy event.
func (s *StrategyState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = StrategyNone
}
