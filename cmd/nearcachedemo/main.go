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

// Command nearcachedemo stands up a CompositeCache and a
// ContinuousQueryCache over an in-memory BackCache, mutates the back
// directly to show events propagating through both, and prints what each
// cache observes. It exists to exercise the package wiring end to end
// without any real remote store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
	"github.com/unikorn-cloud/nearcache/pkg/cacheopts"
	"github.com/unikorn-cloud/nearcache/pkg/cqc"
	"github.com/unikorn-cloud/nearcache/pkg/memstore"
)

type priceFilter struct {
	max int
}

func (f priceFilter) Evaluate(_ string, value int) bool {
	return value <= f.max
}

func run(ctx context.Context) error {
	core := &cacheopts.CoreOptions{}
	opts := &cacheopts.CacheOptions{}

	flags := pflag.NewFlagSet("nearcachedemo", pflag.ExitOnError)
	core.AddFlags(flags)
	opts.AddFlags(flags)

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if err := cacheopts.BindViper(viper.GetViper(), flags); err != nil {
		return err
	}

	core.SetupLogging()

	if err := core.SetupOpenTelemetry(ctx); err != nil {
		return err
	}

	logger := log.FromContext(ctx)

	back := memstore.New(map[string]int{
		"widget": 10,
		"gadget": 25,
		"gizmo":  40,
	})

	front := cache.NewCompositeCache[string, int](back, opts.Strategy())
	defer front.Release() //nolint:errcheck

	view := cqc.New[string, int](back, priceFilter{max: 30}, true, nil, time.Duration(opts.ReconnectIntervalMS)*time.Millisecond)
	defer view.Release()

	if v, err := front.Get(ctx, "widget"); err == nil && !v.Absent {
		logger.Info("composite cache read", "key", "widget", "value", v.Val)
	}

	entries, err := view.GetEntries(ctx, nil)
	if err != nil {
		return err
	}

	logger.Info("view synchronized", "entries", entries)

	if _, err := back.Insert(ctx, "widget", 15, 0); err != nil {
		return err
	}

	if _, err := back.Insert(ctx, "doodad", 5, 0); err != nil {
		return err
	}

	time.Sleep(50 * time.Millisecond)

	entries, err = view.GetEntries(ctx, nil)
	if err != nil {
		return err
	}

	logger.Info("view after mutation", "entries", entries)

	fmt.Println("stats:", front.Stats())

	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
