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

// Package cacheopts is the CLI/logging/tracing setup shared by the demo
// binary.  No HTTP server options exist here: this
// repository is a library with no REST surface, so there is nothing for a
// listen-address flag to bind to.
package cacheopts

import (
	"context"
	"flag"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"

	klog "k8s.io/klog/v2"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/unikorn-cloud/nearcache/pkg/cache"
)

// CoreOptions are the flags every entry point in this module needs:
// logging and tracing setup.
type CoreOptions struct {
	// OTLPEndpoint is used by OpenTelemetry.
	OTLPEndpoint string
	// Zap controls common logging.
	Zap zap.Options
}

func (o *CoreOptions) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "An optional OTLP endpoint.")

	z := flag.NewFlagSet("", flag.ExitOnError)
	o.Zap.BindFlags(z)

	flags.AddGoFlagSet(z)
}

func (o *CoreOptions) SetupLogging() {
	logr := zap.New(zap.UseFlagOptions(&o.Zap))

	log.SetLogger(logr)
	klog.SetLogger(logr)
	otel.SetLogger(logr)
}

func (o *CoreOptions) SetupOpenTelemetry(ctx context.Context, opts ...trace.TracerProviderOption) error {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if o.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(o.OTLPEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(trace.NewTracerProvider(opts...))

	return nil
}

// CacheOptions configures the demo's CompositeCache/ContinuousQueryCache
// pair.  strategyNames lets --invalidation-strategy take symbolic names
// rather than a raw integer.
var strategyNames = map[string]cache.Strategy{
	"none":    cache.StrategyNone,
	"present": cache.StrategyPresent,
	"all":     cache.StrategyAll,
	"logical": cache.StrategyLogical,
	"auto":    cache.StrategyAuto,
}

type CacheOptions struct {
	// InvalidationStrategy names the CompositeCache's target strategy
	//: none, present, all, logical or auto.
	InvalidationStrategy string
	// ReconnectIntervalMS is the CQC's ReconnectInterval in milliseconds
	//; 0 means fail fast on use while disconnected once the view has
	// synchronized at least once (the first configure always runs).
	ReconnectIntervalMS int
}

func (o *CacheOptions) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.InvalidationStrategy, "invalidation-strategy", "present", "CompositeCache invalidation strategy: none, present, all, logical, auto.")
	flags.IntVar(&o.ReconnectIntervalMS, "reconnect-interval-ms", 500, "ContinuousQueryCache reconnect window in milliseconds; 0 fails fast while disconnected.")
}

// Strategy resolves the configured strategy name, defaulting to Present on
// an unrecognized value rather than failing the process over a typo in a
// demo flag.
func (o *CacheOptions) Strategy() cache.Strategy {
	if s, ok := strategyNames[o.InvalidationStrategy]; ok {
		return s
	}

	return cache.StrategyPresent
}

// BindViper layers a config file (if present) under the pflag values:
// flags win, the file fills in anything unset.
func BindViper(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetConfigName("nearcachedemo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		return err
	}

	return nil
}
