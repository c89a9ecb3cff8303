/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitvcs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Submit commits modifications of an existing clone and pushes them.
type Submit struct {
	cfg Config
}

var (
	_ vcs.Submitter = (*Submit)(nil)
	_ vcs.Finalizer = (*Submit)(nil)
)

// NewSubmit validates cfg and returns a submit driver.
func NewSubmit(cfg Config) (*Submit, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, vcs.Configurationf("project root is not specified, an existing clone is required to submit")
	}
	return &Submit{cfg: cfg}, nil
}

// Submit implements vcs.Submitter.
func (s *Submit) Submit(ctx context.Context, req vcs.SubmitRequest) (string, error) {
	return block.Run(ctx, "Submitting", func(ctx context.Context) (string, error) {
		return s.submit(ctx, req)
	})
}

func (s *Submit) submit(ctx context.Context, req vcs.SubmitRequest) (string, error) {
	log := clog.FromContext(ctx)
	if req.CreateReview {
		return "", vcs.Configurationf("'--create-review' option is not supported for git")
	}
	if strings.TrimSpace(req.Description) == "" {
		return "", vcs.Configurationf("commit message cannot be empty")
	}

	prefixes, err := s.prefixes(req.Paths)
	if err != nil {
		return "", err
	}

	repo, err := git.PlainOpen(s.cfg.Root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", &vcs.ConfigurationError{Msg: fmt.Sprintf("'%s' is not a git repository", s.cfg.Root), Err: err}
	}
	if err != nil {
		return "", fmt.Errorf("opening repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}

	for _, path := range slices.Sorted(maps.Keys(status)) {
		if !matchesAny(path, prefixes) {
			continue
		}
		switch fs := status[path]; {
		case fs.Worktree == git.Untracked:
			if req.EditOnly {
				continue
			}
			_, err = worktree.Add(path)
		case fs.Worktree == git.Deleted:
			_, err = worktree.Remove(path)
		case fs.Worktree != git.Unmodified:
			_, err = worktree.Add(path)
		}
		if err != nil {
			return "", fmt.Errorf("staging %s: %w", path, err)
		}
	}

	if status, err = worktree.Status(); err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}
	staged := 0
	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			staged++
		}
	}
	if staged == 0 {
		log.Info("Nothing to submit")
		return "", nil
	}

	hash, err := worktree.Commit(req.Description, &git.CommitOptions{Author: s.cfg.signature()})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	log.Infof("Committed %d file(s) as %s", staged, hash)

	if err := s.push(ctx, repo); err != nil {
		return "", err
	}
	return hash.String(), nil
}

// prefixes turns submitted paths into slash separated prefixes relative to
// the clone root. "." matches everything.
func (s *Submit) prefixes(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return []string{"."}, nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSuffix(p, "...")
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(s.cfg.Root, p)
			if err != nil {
				return nil, fmt.Errorf("path %q: %w", p, err)
			}
			p = rel
		}
		p = filepath.ToSlash(filepath.Clean(p))
		if p == ".." || strings.HasPrefix(p, "../") {
			return nil, vcs.Configurationf("path '%s' is outside of the repository", p)
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesAny(path string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre == "." || path == pre || strings.HasPrefix(path, pre+"/") {
			return true
		}
	}
	return false
}

func (s *Submit) push(ctx context.Context, repo *git.Repository) error {
	log := clog.FromContext(ctx)

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("getting HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return vcs.Configurationf("cannot push from a detached HEAD")
	}
	target := head.Name()
	if ref := s.cfg.referenceName(); ref != "" {
		target = ref
	}

	auth, err := s.cfg.auth()
	if err != nil {
		return err
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", head.Name(), target))
	log.Infof("Pushing %s", refSpec)
	if err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("pushing: %w", err)
	}
	return nil
}

func (c Config) signature() *object.Signature {
	name := c.User
	if name == "" {
		name = "buildvcs"
	}
	email := c.Email
	if email == "" {
		email = name
		if !strings.Contains(email, "@") {
			email = fmt.Sprintf("%s@chainguard.dev", email)
		}
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// Teardown has nothing to release.
func (s *Submit) Teardown() []finalize.Step {
	return nil
}
