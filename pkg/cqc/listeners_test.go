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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/cqc"
	"github.com/unikorn-cloud/nearcache/pkg/memstore"
)

func TestAddCacheListenerPrimesSynchronouslyFromCurrentView(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](map[string]int{"a": 1, "b": 2})
	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)

	var primed []cache.Event[string, int]

	unsub := view.AddCacheListener("listener", true, false, true, nil, func(e cache.Event[string, int]) {
		primed = append(primed, e)
	})
	defer unsub()

	require.Len(t, primed, 2)

	for _, e := range primed {
		require.True(t, e.Priming)
		require.True(t, e.Synthetic)
	}
}

func TestAddCacheListenerObservesLiveAddAndRemove(t *testing.T) {
	t.Parallel()

	back := memstore.New[string, int](nil)
	view := cqc.New[string, int](back, cache.FilterFunc[string, int](func(string, int) bool { return true }), true, nil, time.Second)

	_, err := view.GetEntries(context.Background(), nil)
	require.NoError(t, err)

	var events []cache.Event[string, int]

	unsub := view.AddCacheListener("listener", true, false, false, nil, func(e cache.Event[string, int]) {
		events = append(events, e)
	})
	defer unsub()

	require.NoError(t, view.Insert(context.Background(), "a", 1))
	require.NoError(t, view.Remove(context.Background(), "a"))

	require.Len(t, events, 2)
	require.Equal(t, cache.Inserted, events[0].Type)
	require.Equal(t, cache.Deleted, events[1].Type)
}

func TestMergeConjoinsPlainFilters(t *testing.T) {
	t.Parallel()

	f1 := cache.FilterFunc[string, int](func(_ string, v int) bool { return v > 0 })
	f2 := cache.FilterFunc[string, int](func(_ string, v int) bool { return v < 10 })

	merged := cqc.Merge[string, int](f1, f2)

	require.True(t, merged.Evaluate("k", 5))
	require.False(t, merged.Evaluate("k", -1))
	require.False(t, merged.Evaluate("k", 11))
}

func TestMergePreservesLimitWrapper(t *testing.T) {
	t.Parallel()

	inner := cache.FilterFunc[string, int](func(_ string, v int) bool { return v > 0 })
	lim := cache.LimitFilter[string, int]{Inner: inner, Limit: 5}

	other := cache.FilterFunc[string, int](func(_ string, v int) bool { return v < 10 })

	merged := cqc.Merge[string, int](lim, other)

	result, ok := merged.(cache.LimitFilter[string, int])
	require.True(t, ok)
	require.Equal(t, 5, result.Limit)
	require.True(t, result.Evaluate("k", 5))
	require.False(t, result.Evaluate("k", -1))
}
