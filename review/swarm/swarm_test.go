/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package swarm_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/buildvcs/retry"
	"chainguard.dev/buildvcs/review/swarm"
	"chainguard.dev/buildvcs/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = retry.Config{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, change string) *swarm.Client {
	t.Helper()
	c, err := swarm.New(swarm.Config{
		Server:   srv.URL,
		User:     "ci",
		Password: "secret",
		ReviewID: "42",
		Change:   change,
		Retry:    fastRetry,
	}, swarm.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestIsLatestVersion(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v9/reviews/42", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ci", user)
		assert.Equal(t, "secret", pass)
		fmt.Fprint(w, `{"review": {"id": 42, "changes": [700, 705], "versions": [{"change": 701}, {"change": 706}]}}`)
	})

	tests := []struct {
		change string
		want   bool
	}{
		{change: "706", want: true},
		{change: "701", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.change, func(t *testing.T) {
			got, err := newClient(t, srv, tt.change).IsLatestVersion(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLatestChangeWithoutVersions(t *testing.T) {
	r := &swarm.Review{Changes: []int{700, 705}}
	got, ok := r.LatestChange()
	require.True(t, ok)
	require.Equal(t, 705, got)

	_, ok = (&swarm.Review{}).LatestChange()
	require.False(t, ok)
}

func TestRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"review": {"id": 42, "versions": [{"change": 9}]}}`)
	})

	got, err := newClient(t, srv, "9").IsLatestVersion(context.Background())
	require.NoError(t, err)
	require.True(t, got)
	require.EqualValues(t, 3, calls.Load())
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := newClient(t, srv, "9").IsLatestVersion(context.Background())
	require.Error(t, err)
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	require.EqualValues(t, fastRetry.MaxRetries+1, calls.Load())
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		hint   string
	}{
		{name: "not found", status: http.StatusNotFound, hint: "not found"},
		{name: "unauthorized", status: http.StatusUnauthorized, hint: "check P4USER and P4PASSWD"},
		{name: "forbidden", status: http.StatusForbidden, hint: "check P4USER and P4PASSWD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})
			_, err := newClient(t, srv, "1").IsLatestVersion(context.Background())
			require.True(t, vcs.IsConfiguration(err), "IsLatestVersion = %v", err)
			require.ErrorContains(t, err, tt.hint)
			require.EqualValues(t, 1, calls.Load(), "configuration errors must not be retried")
		})
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  swarm.Config
	}{
		{name: "no server", cfg: swarm.Config{ReviewID: "1", Change: "2"}},
		{name: "no review", cfg: swarm.Config{Server: "https://swarm", Change: "2"}},
		{name: "no change", cfg: swarm.Config{Server: "https://swarm", ReviewID: "1"}},
		{name: "bad url", cfg: swarm.Config{Server: "swarm", ReviewID: "1", Change: "2"}},
		{name: "bad retry", cfg: swarm.Config{Server: "https://swarm", ReviewID: "1", Change: "2", Retry: retry.Config{MaxRetries: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := swarm.New(tt.cfg)
			require.True(t, vcs.IsConfiguration(err), "New = %v", err)
		})
	}
}
