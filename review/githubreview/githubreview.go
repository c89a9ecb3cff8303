/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubreview is a vcs.Review backed by a GitHub pull request.
//
// The client authenticates either with a personal access token or as a
// GitHub App installation. The pull request is the latest version of the
// review when its head is the commit being built.
package githubreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/buildvcs/retry"
	"chainguard.dev/buildvcs/vcs"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// Config identifies a pull request and the commit built for it.
type Config struct {
	Owner  string
	Repo   string
	Number int
	// SHA is the commit under test. An abbreviated hash of at least seven
	// characters is accepted.
	SHA string

	// Token is a personal access token.
	Token string

	// AppID, InstallationID and PrivateKey authenticate as a GitHub App
	// installation and take precedence over Token.
	AppID          int64
	InstallationID int64
	PrivateKey     []byte

	// BaseURL is the API root of a GitHub Enterprise server.
	BaseURL string

	Retry retry.Config
}

// Option configures a Client.
type Option func(*options)

type options struct {
	http *http.Client
}

// WithHTTPClient sets the HTTP client used for API calls, bypassing the
// configured authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = hc }
}

// Client reads one pull request.
type Client struct {
	cfg Config
	gh  *github.Client
}

var _ vcs.Review = (*Client)(nil)

// New validates cfg and returns a Client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	switch {
	case cfg.Owner == "" || cfg.Repo == "":
		return nil, vcs.Configurationf("GITHUB_REPOSITORY must be set as owner/repo")
	case cfg.Number <= 0:
		return nil, vcs.Configurationf("pull request number must be positive, got %d", cfg.Number)
	case len(cfg.SHA) < 7:
		return nil, vcs.Configurationf("GIT_CHECKOUT_ID '%s' is not a commit hash", cfg.SHA)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, &vcs.ConfigurationError{Msg: "invalid retry settings", Err: err}
	}
	if cfg.Retry.StatusOf == nil {
		cfg.Retry.StatusOf = githubStatus
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	hc := o.http
	if hc == nil {
		var err error
		if hc, err = cfg.httpClient(ctx); err != nil {
			return nil, err
		}
	}

	gh := github.NewClient(hc)
	if cfg.BaseURL != "" {
		var err error
		if gh, err = gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err != nil {
			return nil, &vcs.ConfigurationError{Msg: fmt.Sprintf("GITHUB_API_URL '%s' is not valid", cfg.BaseURL), Err: err}
		}
	}
	return &Client{cfg: cfg, gh: gh}, nil
}

func (c Config) httpClient(ctx context.Context) (*http.Client, error) {
	switch {
	case c.AppID != 0:
		if c.InstallationID == 0 || len(c.PrivateKey) == 0 {
			return nil, vcs.Configurationf("GitHub App authentication needs an installation id and a private key")
		}
		tr, err := ghinstallation.New(http.DefaultTransport, c.AppID, c.InstallationID, c.PrivateKey)
		if err != nil {
			return nil, &vcs.ConfigurationError{Msg: "loading GitHub App key", Err: err}
		}
		if c.BaseURL != "" {
			tr.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
		}
		return &http.Client{Transport: tr}, nil
	case c.Token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token})), nil
	default:
		return http.DefaultClient, nil
	}
}

// ID implements vcs.Review.
func (c *Client) ID() string {
	return fmt.Sprintf("%s/%s#%d", c.cfg.Owner, c.cfg.Repo, c.cfg.Number)
}

// IsLatestVersion implements vcs.Review.
func (c *Client) IsLatestVersion(ctx context.Context) (bool, error) {
	pr, err := retry.Do(ctx, c.cfg.Retry, "get pull request", func(ctx context.Context) (*github.PullRequest, error) {
		pr, _, err := c.gh.PullRequests.Get(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Number)
		return pr, err
	})
	if err != nil {
		var er *github.ErrorResponse
		if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound {
			return false, &vcs.ConfigurationError{Msg: fmt.Sprintf("pull request %s is not found", c.ID()), Err: err}
		}
		return false, fmt.Errorf("getting pull request %s: %w", c.ID(), err)
	}

	head := pr.GetHead().GetSHA()
	clog.FromContext(ctx).Debugf("Pull request %s head is %s", c.ID(), head)
	return strings.HasPrefix(head, c.cfg.SHA), nil
}

// githubStatus reads the HTTP status from go-github errors. Rate limit
// errors count as 429.
func githubStatus(err error) (int, bool) {
	var rl *github.RateLimitError
	var arl *github.AbuseRateLimitError
	if errors.As(err, &rl) || errors.As(err, &arl) {
		return http.StatusTooManyRequests, true
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode, true
	}
	return 0, false
}
