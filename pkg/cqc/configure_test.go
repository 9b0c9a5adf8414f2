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

package cqc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/cache/cachemock"
	"github.com/unikorn-cloud/nearcache/pkg/cqc"
)

// TestReconfigureUnwindsOnAddListenerFailure exercises the saga's
// compensation path: when the add-listener subscribe fails, the
// already-registered deactivation and remove-listener subscriptions must be
// torn down again, and the cache must land back in Disconnected rather than
// wedge in Configuring.
func TestReconfigureUnwindsOnAddListenerFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	back := cachemock.NewMockBackCache[string, int](ctrl)

	var deactivationUnsubbed, removeUnsubbed bool

	back.EXPECT().SubscribeDeactivation(gomock.Any()).Return(func() { deactivationUnsubbed = true })
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() { removeUnsubbed = true }, nil)
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("subscribe boom"))

	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, cqc.Disconnected, view.State())
	require.True(t, removeUnsubbed, "remove-listener subscription must be unwound")
	require.True(t, deactivationUnsubbed, "deactivation subscription must be unwound")
}

// TestReconfigureUnwindsOnBulkLoadFailure exercises unwinding all three
// listener registrations when the final bulk-load step fails.
func TestReconfigureUnwindsOnBulkLoadFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	back := cachemock.NewMockBackCache[string, int](ctrl)

	unwound := map[string]bool{}

	back.EXPECT().SubscribeDeactivation(gomock.Any()).Return(func() { unwound["deactivation"] = true })
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() { unwound["remove"] = true }, nil)
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() { unwound["add"] = true }, nil)
	back.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("query boom"))

	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	_, err := view.Contains(context.Background(), "a")
	require.Error(t, err)
	require.Equal(t, cqc.Disconnected, view.State())
	require.True(t, unwound["deactivation"])
	require.True(t, unwound["remove"])
	require.True(t, unwound["add"])
}

// TestEventDuringPopulationIsDeferredAndReconciled: mutations racing the
// bulk-load deliver their events while the cache is still Configuring; the
// keys must be deferred and re-read once Configured, so the final view
// reflects the mutation rather than the (older) bulk-load result.
func TestEventDuringPopulationIsDeferredAndReconciled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	back := cachemock.NewMockBackCache[string, int](ctrl)

	var add *cache.ListenerDescriptor[string, int]

	back.EXPECT().SubscribeDeactivation(gomock.Any()).Return(func() {})
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() {}, nil)
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ cache.Subscription[string, int], l *cache.ListenerDescriptor[string, int]) (func(), error) {
			add = l
			return func() {}, nil
		})
	back.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, cache.Filter[string, int], bool) (map[string]cache.Value[int], error) {
			add.Handle(cache.Event[string, int]{Type: cache.Updated, Key: "one", OldValue: cache.Present(10), NewValue: cache.Present(99)})
			add.Handle(cache.Event[string, int]{Type: cache.Inserted, Key: "two", NewValue: cache.Present(20)})

			return map[string]cache.Value[int]{"one": cache.Present(10)}, nil
		})
	back.EXPECT().Get(gomock.Any(), "one").Return(cache.Present(99), nil)
	back.EXPECT().Get(gomock.Any(), "two").Return(cache.Present(20), nil)

	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	entries, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())
	require.Equal(t, map[string]int{"one": 99, "two": 20}, entries)
}

// TestReconfigureSucceedsAndSynchronizes is the happy path: every step
// succeeds and the cache lands Synchronized with the bulk-load result
// visible in the view.
func TestReconfigureSucceedsAndSynchronizes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	back := cachemock.NewMockBackCache[string, int](ctrl)

	back.EXPECT().SubscribeDeactivation(gomock.Any()).Return(func() {})
	back.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(func() {}, nil).Times(2)
	back.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Return(map[string]cache.Value[int]{
		"a": cache.Present(1),
	}, nil)

	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	entries, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())
	require.Equal(t, map[string]int{"a": 1}, entries)
}
