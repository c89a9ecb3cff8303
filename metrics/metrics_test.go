/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
)

func TestRecorderCounts(t *testing.T) {
	ctx := context.Background()
	enriched := 0
	r := New("test-counts").WithEnricher(func(_ context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		enriched++
		return base
	})

	r.FilesSynced(ctx, 12)
	r.FilesSynced(ctx, 0)
	r.ShelveApplied(ctx)
	r.ShelveApplied(ctx)
	r.DisconnectAnomaly(ctx)

	if got := testutil.ToFloat64(filesSynced.WithLabelValues("test-counts")); got != 12 {
		t.Errorf("files synced = %v, want 12", got)
	}
	if got := testutil.ToFloat64(shelvesApplied.WithLabelValues("test-counts")); got != 2 {
		t.Errorf("shelves applied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(disconnectAnomalies.WithLabelValues("test-counts")); got != 1 {
		t.Errorf("anomalies = %v, want 1", got)
	}
	if enriched != 4 {
		t.Errorf("enricher called %d times, want 4", enriched)
	}
}

func TestObserver(t *testing.T) {
	obs := New("test-observer").Observer(context.Background())
	obs("test-disconnect", 2)
	obs("test-disconnect", 2)
	if got := testutil.ToFloat64(finalizeSteps.WithLabelValues("test-disconnect", "2")); got != 2 {
		t.Errorf("finalize steps = %v, want 2", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.FilesSynced(context.Background(), 3)
	r.ShelveApplied(context.Background())
	r.Observer(context.Background())("nil-recorder", 0)
}

func TestWriteTextfile(t *testing.T) {
	New("test-textfile").ShelveApplied(context.Background())

	path := filepath.Join(t.TempDir(), "buildvcs.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `buildvcs_shelves_applied_total{vcs="test-textfile"} 1`) {
		t.Errorf("textfile missing counter:\n%s", b)
	}
}
