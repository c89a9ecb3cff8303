/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics counts what a build run did to its workspace: files
// synchronized, shelved changes applied and finalization outcomes. The
// counters are exported as Prometheus metrics and mirrored to the global
// OpenTelemetry meter.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	filesSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildvcs_files_synced_total",
			Help: "Total number of files downloaded into build workspaces",
		},
		[]string{"vcs"},
	)

	shelvesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildvcs_shelves_applied_total",
			Help: "Total number of pending changes applied on top of synced workspaces",
		},
		[]string{"vcs"},
	)

	finalizeSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildvcs_finalize_steps_total",
			Help: "Finalization steps run, by step name and severity",
		},
		[]string{"step", "severity"},
	)

	disconnectAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildvcs_disconnect_anomalies_total",
			Help: "Disconnects that found the session already closed",
		},
		[]string{"vcs"},
	)
)

// AttributeEnricher adds contextual attributes to every recorded data point.
type AttributeEnricher func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue

// Recorder records workspace activity for one repository kind.
type Recorder struct {
	vcs      string
	enricher AttributeEnricher

	synced  metric.Int64Counter
	shelves metric.Int64Counter
	steps   metric.Int64Counter
	anomaly metric.Int64Counter
}

// New creates a Recorder labelled with the repository kind (p4, git, none).
// Counters that cannot be created on the OpenTelemetry meter degrade to
// no-ops; the Prometheus side is unaffected.
func New(vcs string) *Recorder {
	meter := otel.Meter("chainguard.dev/buildvcs", metric.WithInstrumentationVersion("1.0.0"))
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			slog.Warn("Failed to create counter, metric will be disabled", "error", err, "counter", name)
			return noop.Int64Counter{}
		}
		return c
	}
	return &Recorder{
		vcs:     vcs,
		synced:  counter("buildvcs.files.synced", "Files downloaded into the workspace", "{files}"),
		shelves: counter("buildvcs.shelves.applied", "Pending changes applied", "{changes}"),
		steps:   counter("buildvcs.finalize.steps", "Finalization steps run", "{steps}"),
		anomaly: counter("buildvcs.disconnect.anomalies", "Disconnects without a session", "{events}"),
	}
}

// WithEnricher sets the attribute enricher and returns the Recorder.
func (r *Recorder) WithEnricher(e AttributeEnricher) *Recorder {
	r.enricher = e
	return r
}

func (r *Recorder) attrs(ctx context.Context, extra ...attribute.KeyValue) metric.AddOption {
	base := []attribute.KeyValue{attribute.String("vcs", r.vcs)}
	if r.enricher != nil {
		base = r.enricher(ctx, base)
	}
	return metric.WithAttributes(append(base, extra...)...)
}

// FilesSynced records n files downloaded by one sync.
func (r *Recorder) FilesSynced(ctx context.Context, n int) {
	if r == nil || n <= 0 {
		return
	}
	filesSynced.WithLabelValues(r.vcs).Add(float64(n))
	r.synced.Add(ctx, int64(n), r.attrs(ctx))
}

// ShelveApplied records one applied pending change.
func (r *Recorder) ShelveApplied(ctx context.Context) {
	if r == nil {
		return
	}
	shelvesApplied.WithLabelValues(r.vcs).Inc()
	r.shelves.Add(ctx, 1, r.attrs(ctx))
}

// DisconnectAnomaly records a disconnect that found no open session.
func (r *Recorder) DisconnectAnomaly(ctx context.Context) {
	if r == nil {
		return
	}
	disconnectAnomalies.WithLabelValues(r.vcs).Inc()
	r.anomaly.Add(ctx, 1, r.attrs(ctx))
}

// Observer returns a callback suitable for finalize.WithObserver.
func (r *Recorder) Observer(ctx context.Context) func(step string, severity int) {
	return func(step string, severity int) {
		finalizeSteps.WithLabelValues(step, strconv.Itoa(severity)).Inc()
		if r != nil {
			r.steps.Add(ctx, 1, r.attrs(ctx,
				attribute.String("step", step),
				attribute.Int("severity", severity)))
		}
	}
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
