/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package block runs named lifecycle steps ("Connecting", "Downloading",
// ...) inside a log scope and a trace span, so the build log and the trace
// show the same structure.
package block

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/buildvcs/block"

type pathKey struct{}

// Path returns the names of the blocks enclosing ctx, outermost first.
func Path(ctx context.Context) []string {
	p, _ := ctx.Value(pathKey{}).([]string)
	return p
}

// Run executes fn inside a block called name and returns its results. The
// block's span is marked failed when fn returns an error.
func Run[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	parent := Path(ctx)
	path := make([]string, 0, len(parent)+1)
	path = append(append(path, parent...), name)
	ctx = context.WithValue(ctx, pathKey{}, path)

	tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, name, oteltrace.WithAttributes(
		attribute.Int("block.depth", len(path)),
	))
	defer span.End()

	log := clog.FromContext(ctx).With("block", name)
	ctx = clog.WithLogger(ctx, log)

	log.Infof("==> %s", name)
	start := time.Now()
	res, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.With("duration", time.Since(start)).Errorf("%s failed: %v", name, err)
		return res, err
	}
	span.SetStatus(codes.Ok, "")
	log.With("duration", time.Since(start)).Debugf("%s done", name)
	return res, nil
}

// Do is Run for steps without a result value.
func Do(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := Run(ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
