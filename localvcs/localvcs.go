/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package localvcs implements the driver for builds from a plain local
// directory. The sources are copied into the project root, or used in place
// when the two are the same directory.
package localvcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"chainguard.dev/buildvcs/block"
	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/metrics"
	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Config holds the settings of the local driver.
type Config struct {
	// Source is the directory holding the sources.
	Source string
	// Root is the project root. Empty means Source.
	Root string
	// ForceClean replaces a leftover root before copying and removes the
	// copy at teardown.
	ForceClean bool
}

// Option configures a driver.
type Option func(*Main)

// WithMetrics sets the recorder for the files synced counter.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Main) { m.metrics = r }
}

// Main copies a local directory for a build.
type Main struct {
	cfg     Config
	inPlace bool
	metrics *metrics.Recorder
	status  *vcs.Status
}

var _ vcs.WorkspacePreparer = (*Main)(nil)

// NewMain validates cfg and returns a main build driver.
func NewMain(cfg Config, opts ...Option) (*Main, error) {
	if cfg.Source == "" {
		return nil, vcs.Configurationf("SOURCE_DIR is not specified")
	}
	if cfg.Root == "" {
		cfg.Root = cfg.Source
	}
	source, err := filepath.Abs(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Source, err)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Root, err)
	}
	cfg.Source, cfg.Root = source, root

	m := &Main{cfg: cfg, inPlace: source == root, status: &vcs.Status{}}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Prepare copies the sources into the project root.
func (m *Main) Prepare(ctx context.Context) (finalize.Outcome, *vcs.Prepared, error) {
	n, err := block.Run(ctx, "Copying sources", m.copy)
	if err != nil {
		return finalize.Continue(), nil, err
	}
	m.metrics.FilesSynced(ctx, n)
	return finalize.Continue(), &vcs.Prepared{Root: m.cfg.Root, Status: m.status.String()}, nil
}

func (m *Main) copy(ctx context.Context) (int, error) {
	log := clog.FromContext(ctx)

	if _, err := os.Stat(m.cfg.Source); err != nil {
		return 0, &vcs.ConfigurationError{Msg: fmt.Sprintf("source directory '%s' is not accessible", m.cfg.Source), Err: err}
	}
	src := osfs.New(m.cfg.Source)

	if m.inPlace {
		log.Infof("Using sources in place at %s", m.cfg.Root)
		m.status.Printf("Sources used in place: %s\n\n", m.cfg.Root)
		files, err := listFiles(src)
		return len(files), err
	}

	if m.cfg.ForceClean {
		if err := os.RemoveAll(m.cfg.Root); err != nil {
			return 0, fmt.Errorf("removing leftover copy: %w", err)
		}
	}
	if entries, err := os.ReadDir(m.cfg.Root); err == nil && len(entries) > 0 {
		return 0, vcs.Configurationf("'%s' already exists and is not empty, enable force clean to replace it", m.cfg.Root)
	}

	dst := osfs.New(m.cfg.Root)
	files, err := listFiles(src)
	if err != nil {
		return 0, err
	}
	log.Infof("Copying %d file(s) from %s to %s", len(files), m.cfg.Source, m.cfg.Root)
	for _, f := range files {
		if err := copyFile(src, dst, f); err != nil {
			return 0, err
		}
	}
	m.status.Printf("Source directory: %s\n\n", m.cfg.Source)
	return len(files), nil
}

// listFiles returns the slash separated paths of every file and symlink
// under fs, skipping the snapshot directory.
func listFiles(fs billy.Filesystem) ([]string, error) {
	var files []string
	err := util.Walk(fs, ".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		path = filepath.ToSlash(path)
		if path == vcs.SnapshotDir && info.IsDir() {
			return filepath.SkipDir
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", fs.Root(), err)
	}
	slices.Sort(files)
	return files, nil
}

func copyFile(src, dst billy.Filesystem, path string) error {
	info, err := src.Lstat(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := dst.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := src.Readlink(path)
		if err != nil {
			return err
		}
		if err := dst.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return dst.Symlink(target, path)
	}
	data, err := util.ReadFile(src, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := util.WriteFile(dst, path, data, info.Mode().Perm()|0o200); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Revert snapshots every file that differs from the source directory and
// restores the copy. Sources used in place have nothing to compare with.
func (m *Main) Revert(ctx context.Context) ([]vcs.DiffEntry, error) {
	if m.inPlace {
		clog.FromContext(ctx).Warn("Sources are used in place, nothing to revert")
		return nil, nil
	}
	return block.Run(ctx, "Revert workspace to source state", m.snapshotAndRestore)
}

func (m *Main) snapshotAndRestore(ctx context.Context) ([]vcs.DiffEntry, error) {
	src, dst := osfs.New(m.cfg.Source), osfs.New(m.cfg.Root)

	srcFiles, err := listFiles(src)
	if err != nil {
		return nil, err
	}
	dstFiles, err := listFiles(dst)
	if err != nil {
		return nil, err
	}

	type change struct {
		path   string
		action vcs.FileAction
	}
	var changes []change
	for _, f := range dstFiles {
		if _, found := slices.BinarySearch(srcFiles, f); !found {
			changes = append(changes, change{f, vcs.ActionAdd})
			continue
		}
		same, err := sameContent(src, dst, f)
		if err != nil {
			return nil, err
		}
		if !same {
			changes = append(changes, change{f, vcs.ActionEdit})
		}
	}
	for _, f := range srcFiles {
		if _, found := slices.BinarySearch(dstFiles, f); !found {
			changes = append(changes, change{f, vcs.ActionDelete})
		}
	}
	slices.SortFunc(changes, func(a, b change) int { return strings.Compare(a.path, b.path) })

	entries := make([]vcs.DiffEntry, 0, len(changes))
	for _, c := range changes {
		relative := filepath.FromSlash(c.path)
		if c.action != vcs.ActionDelete {
			if err := vcs.CopyAside(m.cfg.Root, relative); err != nil {
				return nil, err
			}
		}
		if c.action == vcs.ActionAdd {
			if err := dst.Remove(c.path); err != nil {
				return nil, fmt.Errorf("removing %s: %w", c.path, err)
			}
		} else if err := copyFile(src, dst, c.path); err != nil {
			return nil, err
		}
		entries = append(entries, vcs.Classify(c.action, m.cfg.Root, relative))
	}

	clog.FromContext(ctx).Infof("Reverted %d changed file(s)", len(entries))
	return entries, nil
}

func sameContent(a, b billy.Filesystem, path string) (bool, error) {
	ai, err := a.Lstat(path)
	if err != nil {
		return false, err
	}
	bi, err := b.Lstat(path)
	if err != nil {
		return false, err
	}
	if ai.Mode()&os.ModeSymlink != 0 || bi.Mode()&os.ModeSymlink != 0 {
		if ai.Mode().Type() != bi.Mode().Type() {
			return false, nil
		}
		at, err := a.Readlink(path)
		if err != nil {
			return false, err
		}
		bt, err := b.Readlink(path)
		return at == bt, err
	}

	ad, err := util.ReadFile(a, path)
	if err != nil {
		return false, err
	}
	bd, err := util.ReadFile(b, path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(ad, bd), nil
}

// Teardown removes the copy when ForceClean is set.
func (m *Main) Teardown() []finalize.Step {
	if !m.cfg.ForceClean || m.inPlace {
		return nil
	}
	return []finalize.Step{{
		Name: "clean workspace",
		Fn: finalize.Plain(func(ctx context.Context) error {
			return block.Do(ctx, "Cleaning workspace", func(ctx context.Context) error {
				clog.FromContext(ctx).Infof("Removing %s", m.cfg.Root)
				return os.RemoveAll(m.cfg.Root)
			})
		}),
	}}
}
