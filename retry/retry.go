/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries calls to remote services that fail transiently.
//
// Which failures are transient is decided per client: a Config names the
// HTTP statuses worth another attempt and how to read the status out of
// the errors its client returns.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/chainguard-dev/clog"
)

// TransientStatuses are retried when a Config lists none.
var TransientStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseBackoff doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxJitter bounds the random delay added to each backoff.
	MaxJitter time.Duration

	// Statuses lists the HTTP statuses worth retrying. Empty means
	// TransientStatuses.
	Statuses []int
	// StatusOf reads the HTTP status carried by an error. Nil reads a
	// *StatusError.
	StatusOf func(error) (int, bool)
}

// Validate checks that the configuration has valid values.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0, c.MaxBackoff < 0, c.MaxJitter < 0:
		return errors.New("backoff durations cannot be negative")
	}
	for _, s := range c.Statuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("%d is not an HTTP status", s)
		}
	}
	return nil
}

// DefaultConfig suits review-system REST calls made once per build.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// StatusError is returned for an HTTP response whose status is not a success.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func statusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// Transient reports whether err carries one of the retried statuses.
func (c Config) Transient(err error) bool {
	read := c.StatusOf
	if read == nil {
		read = statusOf
	}
	code, ok := read(err)
	if !ok {
		return false
	}
	statuses := c.Statuses
	if len(statuses) == 0 {
		statuses = TransientStatuses
	}
	return slices.Contains(statuses, code)
}

func (c Config) wait(attempt int) time.Duration {
	d := min(c.BaseBackoff<<attempt, c.MaxBackoff)
	if c.MaxJitter > 0 {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// Do calls fn until it succeeds, fails with an error that is not
// transient, or MaxRetries retries are spent.
func Do[T any](ctx context.Context, c Config, operation string, fn func(context.Context) (T, error)) (T, error) {
	log := clog.FromContext(ctx).With("operation", operation)
	for attempt := 0; ; attempt++ {
		res, err := fn(ctx)
		switch {
		case err == nil:
			return res, nil
		case !c.Transient(err):
			return res, err
		case attempt >= c.MaxRetries:
			return res, fmt.Errorf("%s failed after %d retries: %w", operation, c.MaxRetries, err)
		}

		wait := c.wait(attempt)
		log.With("attempt", attempt+1).With("backoff", wait).Warnf("Transient failure, retrying: %v", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
	}
}
