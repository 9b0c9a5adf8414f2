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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/cqc"
	"github.com/unikorn-cloud/nearcache/pkg/memstore"
)

type belowFilter struct {
	max int
}

func (f belowFilter) Evaluate(_ string, value int) bool {
	return value < f.max
}

func TestGetEntriesSynchronizesAndReturnsMatchingKeys(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{
		"a": 1,
		"b": 2,
		"c": 30,
	})

	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	entries, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 1, "b": 2}, entries)
	require.Equal(t, cqc.Synchronized, view.State())
}

func TestInsertEventuallyEntersView(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	require.NoError(t, view.Insert(context.Background(), "a", 5))

	v, err := view.Get(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, v.Absent)
	require.Equal(t, 5, v.Val)
}

func TestInsertRejectsValueOutsidePredicate(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	err := view.Insert(context.Background(), "a", 50)
	require.ErrorIs(t, err, cache.ErrPredicateViolation)
}

func TestRemoveTakesKeyOutOfView(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	ok, err := view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, view.Remove(context.Background(), "a"))

	ok, err = view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackMutationOutsidePredicateRemovesKeyFromView(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	ok, err := view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = back.Insert(context.Background(), "a", 99, 0)
	require.NoError(t, err)

	ok, err = view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransformerForcesReadOnly(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, func(v int) int { return v * 10 }, time.Second)

	require.True(t, view.ReadOnly())

	err := view.Insert(context.Background(), "b", 2)
	require.ErrorIs(t, err, cache.ErrReadOnly)
}

func TestTransformerAppliesToViewValues(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, func(v int) int { return v * 10 }, time.Second)

	v, err := view.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 10, v.Val)
}

func TestInvokeOutOfViewKeyThatExistsInBackFails(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 50})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	_, err := view.Invoke(context.Background(), "a", func(_ string, _ cache.Value[int]) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, cache.ErrOutOfView)
}

func TestInvokeAbsentKeyIsAllowed(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	called := false

	_, err := view.Invoke(context.Background(), "missing", func(_ string, v cache.Value[int]) (any, error) {
		called = true
		require.True(t, v.Absent)

		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, called)
}

// TestDestroyDeactivationServesStaleReadsWithinReconnectWindow: a destroy
// disconnects the view but keeps its storage, so local reads keep working
// for the length of the reconnect window without triggering reconfiguration.
func TestDestroyDeactivationServesStaleReadsWithinReconnectWindow(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Minute)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())

	back.Destroy()

	require.Equal(t, cqc.Disconnected, view.State())

	ok, err := view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok, "stale local read inside the reconnect window")
	require.Equal(t, cqc.Disconnected, view.State(), "a windowed read must not reconfigure")
}

// TestReconnectWindowElapsedTriggersReconfigure: once the window has
// passed, the next use reconfigures and resynchronizes.
func TestReconnectWindowElapsedTriggersReconfigure(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, 50*time.Millisecond)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())

	back.Destroy()
	require.Equal(t, cqc.Disconnected, view.State())

	time.Sleep(120 * time.Millisecond)

	ok, err := view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cqc.Synchronized, view.State(), "use after the window must have reconfigured")
}

func TestRemoveIndexNeverForwardsToBack(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	require.NoError(t, view.AddIndex(context.Background(), "idx", false))
	require.NoError(t, view.RemoveIndex(context.Background(), "idx"))
}

// BenchmarkContinuousQueryCacheGet tests single key retrieval performance
// once the view is synchronized. Expect ~150ns.
func BenchmarkContinuousQueryCacheGet(b *testing.B) {
	b.StopTimer()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	_, err := view.Get(b.Context(), "a")
	require.NoError(b, err)

	b.StartTimer()

	for range b.N {
		_, err := view.Get(b.Context(), "a")
		require.NoError(b, err)
	}
}

// BenchmarkContinuousQueryCacheGetAll tests batch retrieval performance once
// the view is synchronized.
func BenchmarkContinuousQueryCacheGetAll(b *testing.B) {
	b.StopTimer()

	seed := make(map[string]int, 64)
	keys := make([]string, 0, 64)

	for i := range 64 {
		key := fmt.Sprintf("key-%d", i)
		keys = append(keys, key)
		seed[key] = i
	}

	back := memstore.New[string, int](seed)
	view := cqc.New[string, int](back, belowFilter{max: 1000}, true, nil, time.Second)

	_, err := view.GetAll(b.Context(), keys)
	require.NoError(b, err)

	b.StartTimer()

	for range b.N {
		_, err := view.GetAll(b.Context(), keys)
		require.NoError(b, err)
	}
}

// TestZeroReconnectIntervalStillPerformsInitialConfigure guards against a
// brand-new CQC (never Synchronized, zero-value disconnectedAt) bricking
// itself: ReconnectInterval=0 means "fail fast once disconnected after a
// prior sync", not "never configure at all".
func TestZeroReconnectIntervalStillPerformsInitialConfigure(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, 0)

	ok, err := view.Contains(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cqc.Synchronized, view.State())
}

// TestZeroReconnectIntervalFailsFastAfterPriorSync: once a CQC has been Synchronized at least once, a subsequent
// disconnect with ReconnectInterval=0 must fail fast rather than silently
// reconfiguring or serving stale data.
func TestZeroReconnectIntervalFailsFastAfterPriorSync(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, 0)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())

	back.Destroy()
	require.Equal(t, cqc.Disconnected, view.State())

	_, err = view.Contains(context.Background(), "a")
	require.ErrorIs(t, err, cache.ErrInactive)
}

func TestBackInsertOutsidePredicateNeverEntersView(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)

	_, err = back.Insert(context.Background(), "big", 99, 0)
	require.NoError(t, err)

	ok, err := view.Contains(context.Background(), "big")
	require.NoError(t, err)
	require.False(t, ok, "a value failing the predicate must not be materialized")
}

func TestReleaseTearsDownSubscriptionsAndRejectsFurtherUse(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)

	view.Release()

	_, err = view.Get(context.Background(), "a")
	require.ErrorIs(t, err, cache.ErrInactive)

	// A released view no longer tracks back mutations: the event
	// subscriptions were unregistered, so this must not panic or leak into
	// the cleared storage.
	_, err = back.Insert(context.Background(), "b", 2, 0)
	require.NoError(t, err)
}

func TestResetRebuildsViewFromBack(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1})
	view := cqc.New[string, int](back, belowFilter{max: 10}, true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, cqc.Synchronized, view.State())

	require.NoError(t, view.Reset(context.Background()))
	require.Equal(t, cqc.Synchronized, view.State())

	entries, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 1}, entries)

	// The reset must not have stacked a second set of listeners: one back
	// mutation produces exactly one view update, not a double-apply.
	var adds int
	unsub := view.AddCacheListener("count", true, true, false, nil, func(e cache.Event[string, int]) {
		if e.Type == cache.Inserted {
			adds++
		}
	})
	defer unsub()

	_, err = back.Insert(context.Background(), "b", 2, 0)
	require.NoError(t, err)
	require.Equal(t, 1, adds)

	ok, err := view.Contains(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, ok)
}
