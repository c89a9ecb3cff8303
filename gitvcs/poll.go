/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Poll lists commits of the configured branch without a working tree.
type Poll struct {
	cfg Config
}

var (
	_ vcs.Poller    = (*Poll)(nil)
	_ vcs.Finalizer = (*Poll)(nil)
)

// NewPoll validates cfg and returns a poll driver.
func NewPoll(cfg Config) (*Poll, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Poll{cfg: cfg}, nil
}

// Poll returns, keyed by the repository, at most limit commits from the
// reference commit to the branch head, oldest first. Without a reference
// only the head commit is returned.
func (p *Poll) Poll(ctx context.Context, reference map[string]string, limit int) (map[string][]string, error) {
	if limit < 1 {
		limit = 1
	}
	auth, err := p.cfg.auth()
	if err != nil {
		return nil, err
	}

	clog.FromContext(ctx).Infof("Fetching history of %s", p.cfg.Repo)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:           p.cfg.Repo,
		ReferenceName: p.cfg.referenceName(),
		SingleBranch:  true,
		NoCheckout:    true,
		Auth:          auth,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("getting HEAD: %w", err)
	}

	ref := reference[p.cfg.Repo]
	if ref == "" {
		ref = head.Hash().String()
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	var (
		commits []string
		found   bool
	)
	if err := iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c.Hash.String())
		if strings.HasPrefix(c.Hash.String(), ref) {
			found = true
			return storer.ErrStop
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walking log: %w", err)
	}
	if !found {
		return nil, vcs.Configurationf("reference commit '%s' is not in the history of %s", ref, p.cfg.Repo)
	}

	if len(commits) > limit {
		commits = commits[:limit]
	}
	slices.Reverse(commits)
	return map[string][]string{p.cfg.Repo: commits}, nil
}

// Teardown has nothing to release.
func (p *Poll) Teardown() []finalize.Step {
	return nil
}
