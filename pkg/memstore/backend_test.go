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

package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/memstore"
	"github.com/unikorn-cloud/nearcache/pkg/testutil"
)

func TestGetMiss(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)

	v, err := back.Get(context.Background(), testutil.GenerateTestID())
	require.NoError(t, err)
	require.True(t, v.Absent)
}

func TestInsertThenGet(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)

	key := testutil.GenerateTestID()

	prev, err := back.Insert(context.Background(), key, 1, 0)
	require.NoError(t, err)
	require.True(t, prev.Absent)

	v, err := back.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, v.Absent)
	require.Equal(t, 1, v.Val)
}

func TestInsertDeliversEventToKeySubscriber(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	key := testutil.GenerateTestID()

	var got []cache.Event[string, int]

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "sub",
		Synchronous: true,
		Handle: func(e cache.Event[string, int]) {
			got = append(got, e)
		},
	}

	unsub, err := back.Subscribe(context.Background(), cache.Subscription[string, int]{Kind: cache.SubscribeKey, Key: key}, listener)
	require.NoError(t, err)

	defer unsub()

	_, err = back.Insert(context.Background(), key, 7, 0)
	require.NoError(t, err)

	require.Len(t, got, 1)
	require.Equal(t, cache.Inserted, got[0].Type)
	require.Equal(t, 7, got[0].NewValue.Val)

	_, err = back.Insert(context.Background(), key, 8, 0)
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, cache.Updated, got[1].Type)
	require.Equal(t, 7, got[1].OldValue.Val)
	require.Equal(t, 8, got[1].NewValue.Val)
}

func TestRemoveDeliversDeleteAndUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"k": 1})

	var events int

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "sub",
		Synchronous: true,
		Handle: func(cache.Event[string, int]) {
			events++
		},
	}

	unsub, err := back.Subscribe(context.Background(), cache.Subscription[string, int]{Kind: cache.SubscribeKey, Key: "k"}, listener)
	require.NoError(t, err)

	require.NoError(t, back.Remove(context.Background(), "k"))
	require.Equal(t, 1, events)

	unsub()

	_, err = back.Insert(context.Background(), "k", 2, 0)
	require.NoError(t, err)
	require.Equal(t, 1, events, "no further delivery after unsubscribe")
}

func TestSubscribePrimingDeliversCurrentValueSynchronously(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"k": 42})

	var primed cache.Event[string, int]

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "prime",
		Synchronous: true,
		Handle: func(e cache.Event[string, int]) {
			primed = e
		},
	}

	sub := cache.Subscription[string, int]{Kind: cache.SubscribeKey, Key: "k", Priming: true}

	_, err := back.Subscribe(context.Background(), sub, listener)
	require.NoError(t, err)

	require.True(t, primed.Priming)
	require.True(t, primed.Synthetic)
	require.Equal(t, 42, primed.NewValue.Val)
}

func TestQueryFiltersEntries(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1, "b": 2, "c": 3})

	result, err := back.Query(context.Background(), cache.FilterFunc[string, int](func(_ string, v int) bool { return v >= 2 }), true)
	require.NoError(t, err)
	require.Len(t, result, 2)

	for _, v := range result {
		require.False(t, v.Absent)
		require.GreaterOrEqual(t, v.Val, 2)
	}
}

func TestTruncateFiresDeactivationUpdated(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"k": 1})

	var got cache.DeactivationEvent

	unsub := back.SubscribeDeactivation(func(e cache.DeactivationEvent) {
		got = e
	})
	defer unsub()

	require.NoError(t, back.Truncate(context.Background()))
	require.Equal(t, cache.Updated, got.Type)

	v, err := back.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, v.Absent)
}

func TestDestroyFiresDeactivationDeleted(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)

	var got cache.DeactivationEvent

	unsub := back.SubscribeDeactivation(func(e cache.DeactivationEvent) {
		got = e
	})
	defer unsub()

	back.Destroy()
	require.Equal(t, cache.Deleted, got.Type)
}

func TestAllSubscriptionWithEventFilterHonorsMask(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)

	var entered, deleted int

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "all",
		Synchronous: true,
		Handle: func(e cache.Event[string, int]) {
			switch e.Type {
			case cache.Inserted:
				entered++
			case cache.Deleted:
				deleted++
			}
		},
	}

	mask := cache.MaskInserted | cache.MaskDeleted
	sub := cache.Subscription[string, int]{
		Kind:   cache.SubscribeAll,
		Filter: cache.NewEventFilter[string, int](mask, nil),
	}

	unsub, err := back.Subscribe(context.Background(), sub, listener)
	require.NoError(t, err)
	defer unsub()

	_, err = back.Insert(context.Background(), "k", 1, 0)
	require.NoError(t, err)

	require.NoError(t, back.Remove(context.Background(), "k"))

	require.Equal(t, 1, entered)
	require.Equal(t, 1, deleted)
}

func TestInsertWithTTLExpiresAndEmitsSyntheticDelete(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	key := testutil.GenerateTestID()

	var mu sync.Mutex

	var got []cache.Event[string, int]

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "ttl",
		Synchronous: true,
		Handle: func(e cache.Event[string, int]) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		},
	}

	unsub, err := back.Subscribe(context.Background(), cache.Subscription[string, int]{Kind: cache.SubscribeKey, Key: key}, listener)
	require.NoError(t, err)
	defer unsub()

	_, err = back.Insert(context.Background(), key, 1, 10*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := back.Get(context.Background(), key)
		return err == nil && v.Absent
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, got, 2)
	require.Equal(t, cache.Deleted, got[1].Type)
	require.True(t, got[1].Synthetic, "expiry is the back's own bookkeeping, not an external write")
	require.Equal(t, 1, got[1].OldValue.Val)
}

func TestRewriteCancelsPendingExpiry(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	key := testutil.GenerateTestID()

	_, err := back.Insert(context.Background(), key, 1, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = back.Insert(context.Background(), key, 2, 0)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	v, err := back.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, v.Absent, "the rewrite must have invalidated the first insert's expiry timer")
	require.Equal(t, 2, v.Val)
}

// TestFilteredSubscriptionIgnoresOutOfFilterInsertAndDelete guards the
// view-maintenance contract: an Inserted event only matches when the new
// value satisfies the inner filter, and a Deleted event only when the old
// value did. Without this a filtered subscriber hears about keys that were
// never in its view.
func TestFilteredSubscriptionIgnoresOutOfFilterInsertAndDelete(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)

	var got []cache.Event[string, int]

	listener := &cache.ListenerDescriptor[string, int]{
		ID:          "filtered",
		Synchronous: true,
		Handle: func(e cache.Event[string, int]) {
			got = append(got, e)
		},
	}

	below := cache.FilterFunc[string, int](func(_ string, v int) bool { return v < 10 })
	mask := cache.MaskInserted | cache.MaskDeleted
	sub := cache.Subscription[string, int]{
		Kind:   cache.SubscribeAll,
		Filter: cache.NewEventFilter[string, int](mask, below),
	}

	unsub, err := back.Subscribe(context.Background(), sub, listener)
	require.NoError(t, err)
	defer unsub()

	_, err = back.Insert(context.Background(), "out", 99, 0)
	require.NoError(t, err)
	require.Empty(t, got, "insert of a value failing the filter must not be delivered")

	require.NoError(t, back.Remove(context.Background(), "out"))
	require.Empty(t, got, "delete of a value that never satisfied the filter must not be delivered")

	_, err = back.Insert(context.Background(), "in", 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, cache.Inserted, got[0].Type)

	require.NoError(t, back.Remove(context.Background(), "in"))
	require.Len(t, got, 2)
	require.Equal(t, cache.Deleted, got[1].Type)
}
