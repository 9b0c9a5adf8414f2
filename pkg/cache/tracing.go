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

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is cached at package scope since there's no per-request object
// to hang it off.  The global TracerProvider delegates lazily, so this
// stays correct even though SetupOpenTelemetry runs after this package is
// imported.
var tracer = otel.GetTracerProvider().Tracer("github.com/unikorn-cloud/nearcache/pkg/cache")

// StartSpan opens a span around a CompositeCache/ContinuousQueryCache
// public operation, so request latency and invalidation behavior show up
// in a trace.
func StartSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op)
}

// EndSpan records the operation's outcome and closes the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
