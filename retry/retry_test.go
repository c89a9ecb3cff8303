/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"chainguard.dev/buildvcs/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()
	attempts := 0
	got, err := retry.Do(context.Background(), testConfig(), "review", func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &retry.StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Fatalf("got %q after %d attempts, want ok after 3", got, attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	attempts := 0
	perm := &retry.StatusError{StatusCode: http.StatusUnauthorized}
	_, err := retry.Do(context.Background(), testConfig(), "review", func(context.Context) (int, error) {
		attempts++
		return 0, perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("got %v, want the permanent error", err)
	}
	if attempts != 1 {
		t.Fatalf("got %d attempts, want 1", attempts)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	attempts := 0
	transient := &retry.StatusError{StatusCode: http.StatusTooManyRequests}
	_, err := retry.Do(context.Background(), cfg, "review", func(context.Context) (int, error) {
		attempts++
		return 0, transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("got %v, want wrapped transient error", err)
	}
	if attempts != cfg.MaxRetries+1 {
		t.Fatalf("got %d attempts, want %d", attempts, cfg.MaxRetries+1)
	}
	if want := fmt.Sprintf("review failed after %d retries", cfg.MaxRetries); !strings.HasPrefix(err.Error(), want) {
		t.Fatalf("error %q does not start with %q", err, want)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := retry.Do(ctx, testConfig(), "review", func(context.Context) (int, error) {
		cancel()
		return 0, &retry.StatusError{StatusCode: http.StatusBadGateway}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := retry.DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig invalid: %v", err)
	}
	bad := retry.Config{MaxRetries: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative retries")
	}
	if err := (retry.Config{Statuses: []int{42}}).Validate(); err == nil {
		t.Error("expected error for a status outside 100..599")
	}
}

func TestDoRetriesConfiguredStatuses(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Statuses = []int{http.StatusConflict}

	attempts := 0
	_, err := retry.Do(context.Background(), cfg, "review", func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &retry.StatusError{StatusCode: http.StatusConflict}
		}
		return 0, &retry.StatusError{StatusCode: http.StatusServiceUnavailable}
	})
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got %v, want the unlisted 503 returned as is", err)
	}
	if attempts != 2 {
		t.Fatalf("got %d attempts, want 2", attempts)
	}
}

type rateLimited struct{}

func (rateLimited) Error() string { return "rate limited" }

func TestTransientWithStatusOf(t *testing.T) {
	cfg := testConfig()
	cfg.StatusOf = func(err error) (int, bool) {
		if errors.As(err, new(rateLimited)) {
			return http.StatusTooManyRequests, true
		}
		return 0, false
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "mapped", err: fmt.Errorf("get: %w", rateLimited{}), want: true},
		{name: "unmapped", err: errors.New("boom"), want: false},
		{name: "status error ignored", err: &retry.StatusError{StatusCode: http.StatusBadGateway}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Transient(tt.err); got != tt.want {
				t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDefaultTransientStatuses(t *testing.T) {
	cfg := retry.DefaultConfig()
	for _, code := range []int{429, 502, 503, 504} {
		if !cfg.Transient(&retry.StatusError{StatusCode: code}) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{400, 401, 404, 500} {
		if cfg.Transient(&retry.StatusError{StatusCode: code}) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
