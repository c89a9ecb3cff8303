/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package swarm is a vcs.Review backed by the Helix Swarm REST API.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/retry"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// apiVersion is the Swarm REST API version the client speaks.
const apiVersion = "v9"

// Config identifies a Swarm review and the change being built for it.
type Config struct {
	// Server is the Swarm base URL.
	Server   string
	User     string
	Password string

	// ReviewID is the Swarm review id.
	ReviewID string
	// Change is the shelved change under test.
	Change string

	Retry retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client reads one Swarm review.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

var _ vcs.Review = (*Client)(nil)

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	switch {
	case cfg.Server == "":
		return nil, vcs.Configurationf("SWARM_SERVER is not specified")
	case cfg.ReviewID == "":
		return nil, vcs.Configurationf("REVIEW is not specified")
	case cfg.Change == "":
		return nil, vcs.Configurationf("SWARM_CHANGELIST is not specified")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.Server, "/"))
	if err != nil || base.Host == "" {
		return nil, vcs.Configurationf("SWARM_SERVER '%s' is not a valid URL", cfg.Server)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, &vcs.ConfigurationError{Msg: "invalid retry settings", Err: err}
	}

	c := &Client{cfg: cfg, base: base, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID implements vcs.Review.
func (c *Client) ID() string {
	return c.cfg.ReviewID
}

// Review is the part of a Swarm review the client reads.
type Review struct {
	ID       int       `json:"id"`
	State    string    `json:"state"`
	Changes  []int     `json:"changes"`
	Versions []Version `json:"versions"`
}

// Version is one revision of a review.
type Version struct {
	Change int    `json:"change"`
	User   string `json:"user"`
	Time   int64  `json:"time"`
}

// LatestChange returns the change of the most recent version, falling back
// to the last associated change for reviews without versions.
func (r *Review) LatestChange() (int, bool) {
	if n := len(r.Versions); n > 0 {
		return r.Versions[n-1].Change, true
	}
	if n := len(r.Changes); n > 0 {
		return r.Changes[n-1], true
	}
	return 0, false
}

// IsLatestVersion implements vcs.Review.
func (c *Client) IsLatestVersion(ctx context.Context) (bool, error) {
	review, err := c.Review(ctx)
	if err != nil {
		return false, err
	}
	latest, ok := review.LatestChange()
	if !ok {
		clog.FromContext(ctx).Warnf("Review %s has no versions", c.cfg.ReviewID)
		return true, nil
	}
	return strconv.Itoa(latest) == c.cfg.Change, nil
}

// Review fetches the review, retrying rate limits and transient server
// errors.
func (c *Client) Review(ctx context.Context) (*Review, error) {
	return retry.Do(ctx, c.cfg.Retry, "get swarm review", c.fetch)
}

func (c *Client) fetch(ctx context.Context) (*Review, error) {
	u := c.base.JoinPath("api", apiVersion, "reviews", c.cfg.ReviewID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, vcs.Configurationf("review %s is not found on %s", c.cfg.ReviewID, c.cfg.Server)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &vcs.ConfigurationError{
			Msg: "Swarm rejected the credentials, check P4USER and P4PASSWD",
			Err: &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)},
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Review *Review `json:"review"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding review: %w", err)
	}
	if payload.Review == nil {
		return nil, fmt.Errorf("response for review %s holds no review", c.cfg.ReviewID)
	}
	return payload.Review, nil
}
