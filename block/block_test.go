/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package block_test

import (
	"context"
	"errors"
	"testing"

	"chainguard.dev/buildvcs/block"
	"github.com/google/go-cmp/cmp"
)

func TestRunNestsPath(t *testing.T) {
	var inner []string
	got, err := block.Run(context.Background(), "Preparing repository", func(ctx context.Context) (int, error) {
		err := block.Do(ctx, "Downloading", func(ctx context.Context) error {
			inner = block.Path(ctx)
			return nil
		})
		return 42, err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 42 {
		t.Errorf("Run = %d, want 42", got)
	}
	if diff := cmp.Diff([]string{"Preparing repository", "Downloading"}, inner); diff != "" {
		t.Errorf("Path (-want +got):\n%s", diff)
	}
}

func TestDoReturnsError(t *testing.T) {
	want := errors.New("sync failed")
	err := block.Do(context.Background(), "Downloading", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("Do = %v, want %v", err, want)
	}
}

func TestPathOutsideBlock(t *testing.T) {
	if p := block.Path(context.Background()); p != nil {
		t.Errorf("Path = %v, want nil", p)
	}
}
