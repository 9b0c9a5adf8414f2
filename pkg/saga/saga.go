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

// Package saga runs an ordered sequence of steps that each leave external
// state behind — listener registrations, subscriptions — and unwinds the
// steps already taken when a later one fails.  The continuous-query cache's
// (re)configuration is the canonical caller: register the deactivation,
// remove and add listeners, then bulk-load, and if the bulk-load fails the
// three registrations must not be left dangling on the back cache.
package saga

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ActionFunc is a step or its undo.  Both are typically bound receivers so
// the steps can share state, e.g. the unsubscribe handle a registration
// step stored for its own compensation to call.
type ActionFunc func(ctx context.Context) error

// Action pairs a step with the compensation that reverses it.
type Action struct {
	// name identifies the step in logs when an unwind itself fails.
	name string
	// action is what is executed on the good path.
	action ActionFunc
	// compensate reverses action's side effects, e.g. unregistering a
	// listener the action installed.  May be nil when the action leaves
	// nothing behind.
	compensate ActionFunc
}

// NewAction creates a new action.
func NewAction(name string, action, compensate ActionFunc) Action {
	return Action{
		name:       name,
		action:     action,
		compensate: compensate,
	}
}

// Handler supplies the ordered steps to run and, implicitly, how to undo
// them on failure of a later step.
type Handler interface {
	Actions() []Action
}

// Run executes the handler's actions in order.  On the first failure it
// runs the compensations of the completed actions in reverse order, then
// returns the failing action's error so the caller can see which part of
// the sequence went wrong, not which part of the cleanup did.  If a
// compensation itself fails, the unwind stops there: the remaining, older
// compensations are not run, and the failing action's error is returned.
func Run(ctx context.Context, handler Handler) error {
	log := log.FromContext(ctx)

	actions := handler.Actions()

	for i := range actions {
		if err := actions[i].action(ctx); err != nil {
			// Unwind everything already done, most recent first, so the
			// external state (e.g. a back cache's subscriber table) ends
			// up as it was before Run started, unless a compensation fails.
			for j := i - 1; j >= 0; j-- {
				if actions[j].compensate == nil {
					continue
				}

				if cerr := actions[j].compensate(ctx); cerr != nil {
					// The unwind itself failed, so some registration may
					// have been left behind; log which step so it can be
					// tracked down, but still report the original error.
					log.Error(cerr, "compensating action failed", "name", actions[j].name)
					return err
				}
			}

			return err
		}
	}

	return nil
}
