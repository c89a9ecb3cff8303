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
	"os"
	"path/filepath"
	"slices"
	"strings"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Main clones a repository for a build.
type Main struct {
	cfg    Config
	opts   options
	status *vcs.Status
	repo   *git.Repository
}

var _ vcs.WorkspacePreparer = (*Main)(nil)

// NewMain validates cfg and returns a main build driver.
func NewMain(cfg Config, opts ...Option) (*Main, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, vcs.Configurationf("project root is not specified. Cannot clone repository")
	}
	return &Main{cfg: cfg, opts: buildOptions(opts), status: &vcs.Status{}}, nil
}

// Prepare clones the configured branch into the project root and checks
// out the pinned commit, if any.
func (m *Main) Prepare(ctx context.Context) (finalize.Outcome, *vcs.Prepared, error) {
	sha, err := block.Run(ctx, "Cloning repository", m.clone)
	if err != nil {
		return finalize.Continue(), nil, err
	}
	return finalize.Continue(), &vcs.Prepared{
		Root:   m.cfg.Root,
		Depots: []vcs.ResolvedDepot{{Path: m.cfg.Repo, Revision: sha}},
		Status: m.status.String(),
	}, nil
}

func (m *Main) clone(ctx context.Context) (string, error) {
	log := clog.FromContext(ctx)

	if m.cfg.ForceClean {
		if err := os.RemoveAll(m.cfg.Root); err != nil {
			return "", fmt.Errorf("removing leftover clone: %w", err)
		}
	}

	auth, err := m.cfg.auth()
	if err != nil {
		return "", err
	}

	log.Infof("Cloning repository %s into %s", m.cfg.Repo, m.cfg.Root)
	repo, err := git.PlainCloneContext(ctx, m.cfg.Root, false, &git.CloneOptions{
		URL:           m.cfg.Repo,
		ReferenceName: m.cfg.referenceName(),
		SingleBranch:  true,
		Auth:          auth,
	})
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return "", &vcs.ConfigurationError{
			Msg: fmt.Sprintf("'%s' already holds a repository, enable force clean to replace it", m.cfg.Root),
			Err: err,
		}
	}
	if err != nil {
		return "", fmt.Errorf("cloning repository: %w", err)
	}
	m.repo = repo

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("getting HEAD: %w", err)
	}
	hash := head.Hash()

	if m.cfg.CheckoutID != "" {
		h, err := repo.ResolveRevision(plumbing.Revision(m.cfg.CheckoutID))
		if err != nil {
			return "", &vcs.ConfigurationError{
				Msg: fmt.Sprintf("commit '%s' is not part of the cloned history", m.cfg.CheckoutID),
				Err: err,
			}
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("getting worktree: %w", err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Hash: *h, Force: true}); err != nil {
			return "", fmt.Errorf("checking out %s: %w", m.cfg.CheckoutID, err)
		}
		hash = *h
	}

	n, err := countFiles(repo, hash)
	if err != nil {
		return "", err
	}
	log.Infof("Checked out %d file(s) at %s", n, hash)
	m.opts.metrics.FilesSynced(ctx, n)

	m.status.Printf("Git repository: %s\n", m.cfg.Repo)
	if m.cfg.Refspec != "" {
		m.status.Printf("Branch: %s\n", m.cfg.Refspec)
	}
	m.status.Printf("Commit: %s\n\n", hash)

	return hash.String(), nil
}

func countFiles(repo *git.Repository, hash plumbing.Hash) (int, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return 0, fmt.Errorf("getting commit object: %w", err)
	}
	files, err := commit.Files()
	if err != nil {
		return 0, fmt.Errorf("listing files: %w", err)
	}
	n := 0
	err = files.ForEach(func(*object.File) error {
		n++
		return nil
	})
	return n, err
}

// Revert snapshots every modified, added or deleted file and resets the
// working tree to the checked out commit.
func (m *Main) Revert(ctx context.Context) ([]vcs.DiffEntry, error) {
	return block.Run(ctx, "Revert workspace to repository state", m.snapshotAndReset)
}

func (m *Main) snapshotAndReset(ctx context.Context) ([]vcs.DiffEntry, error) {
	repo := m.repo
	if repo == nil {
		var err error
		if repo, err = git.PlainOpen(m.cfg.Root); err != nil {
			return nil, fmt.Errorf("opening repo: %w", err)
		}
		m.repo = repo
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}

	var (
		entries []vcs.DiffEntry
		added   []string
	)
	for _, path := range slices.Sorted(maps.Keys(status)) {
		if path == vcs.SnapshotDir || strings.HasPrefix(path, vcs.SnapshotDir+"/") {
			continue
		}
		action := actionFor(status[path])
		if action == "" {
			continue
		}
		relative := filepath.FromSlash(path)
		if action != vcs.ActionDelete {
			if err := vcs.CopyAside(m.cfg.Root, relative); err != nil {
				return nil, err
			}
		}
		if action == vcs.ActionAdd {
			added = append(added, relative)
		}
		entries = append(entries, vcs.Classify(action, m.cfg.Root, relative))
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("resetting worktree: %w", err)
	}
	// Files unknown to HEAD survive a hard reset.
	for _, relative := range added {
		if err := os.Remove(filepath.Join(m.cfg.Root, relative)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing %s: %w", relative, err)
		}
	}

	clog.FromContext(ctx).Infof("Reverted %d changed file(s)", len(entries))
	return entries, nil
}

func actionFor(s *git.FileStatus) vcs.FileAction {
	switch {
	case s.Worktree == git.Untracked || s.Staging == git.Added:
		return vcs.ActionAdd
	case s.Worktree == git.Deleted || s.Staging == git.Deleted:
		return vcs.ActionDelete
	case s.Worktree == git.Unmodified && s.Staging == git.Unmodified:
		return ""
	default:
		return vcs.ActionEdit
	}
}

// Teardown removes the clone when ForceClean is set.
func (m *Main) Teardown() []finalize.Step {
	if !m.cfg.ForceClean {
		return nil
	}
	return []finalize.Step{{
		Name: "clean workspace",
		Fn: finalize.Plain(func(ctx context.Context) error {
			return block.Do(ctx, "Cleaning workspace", m.remove)
		}),
	}}
}

func (m *Main) remove(ctx context.Context) error {
	clog.FromContext(ctx).Infof("Removing %s", m.cfg.Root)
	m.repo = nil
	return os.RemoveAll(m.cfg.Root)
}
