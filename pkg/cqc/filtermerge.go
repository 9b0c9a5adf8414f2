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

import "github.com/unikorn-cloud/nearcache/pkg/cache"

// Merge combines a view's predicate with a caller's filter: a key-association
// wrapper on either side is peeled off and re-wrapped around the merge of
// its inner filter; a limit wrapper is preserved with its limit intact
// while its inner filter is conjoined with the other side; otherwise the
// result is a plain conjunction f1 ∧ f2.
func Merge[K comparable, V any](f1, f2 cache.Filter[K, V]) cache.Filter[K, V] {
	if ka, ok := f1.(cache.KeyAssociation[K, V]); ok {
		return ka.Rewrap(Merge[K, V](ka.Inner, f2))
	}

	if ka, ok := f2.(cache.KeyAssociation[K, V]); ok {
		return ka.Rewrap(Merge[K, V](f1, ka.Inner))
	}

	if lim, ok := f2.(cache.LimitFilter[K, V]); ok {
		return lim.Limited(cache.And(f1, lim.Inner))
	}

	if lim, ok := f1.(cache.LimitFilter[K, V]); ok {
		return lim.Limited(cache.And(lim.Inner, f2))
	}

	return cache.And(f1, f2)
}
