/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"fmt"
	"strings"

	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/vcs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// Config holds the settings of every git driver.
type Config struct {
	// Repo is the remote URL or path.
	Repo string
	// Refspec is the branch to clone, poll and push. Empty means the
	// remote's default branch.
	Refspec string
	// CheckoutID pins the clone to a commit of the branch.
	CheckoutID string
	// CherryPicks are commits to apply on top. Not supported.
	CherryPicks []string
	// Root is the working tree directory.
	Root string
	// ForceClean removes a leftover clone before cloning and removes the
	// clone again at teardown.
	ForceClean bool

	// User and Email identify the author of submitted commits. A user
	// without an email gets one derived from it.
	User  string
	Email string

	// TokenSource authenticates against the remote. Nil means anonymous.
	TokenSource oauth2.TokenSource
}

func (c Config) validate() error {
	if c.Repo == "" {
		return vcs.Configurationf("GIT_REPO is not specified")
	}
	if len(c.CherryPicks) > 0 {
		return vcs.Configurationf("cherry-picking %s is not supported by the git driver", strings.Join(c.CherryPicks, ", "))
	}
	return nil
}

func (c Config) referenceName() plumbing.ReferenceName {
	if c.Refspec == "" {
		return ""
	}
	return plumbing.NewBranchReferenceName(strings.TrimPrefix(c.Refspec, "refs/heads/"))
}

func (c Config) auth() (transport.AuthMethod, error) {
	if c.TokenSource == nil {
		return nil, nil
	}
	token, err := c.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// Option configures a driver.
type Option func(*options)

type options struct {
	metrics *metrics.Recorder
}

// WithMetrics sets the recorder for the files synced counter.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
