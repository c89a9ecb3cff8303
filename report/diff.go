/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"chainguard.dev/buildvcs/vcs"
	"github.com/pmezard/go-difflib/difflib"
)

// FileDiff is the unified diff of one file between its repository state
// and the state the build left it in.
type FileDiff struct {
	Path string `json:"path"`
	// Status is "added", "deleted" or "modified".
	Status string `json:"status"`
	Diff   string `json:"diff"`
}

// FileDiffs computes the unified diff for each entry of the workspace at
// root. An entry without an original path diffs against an empty file; one
// without a snapshot diffs the original against an empty file.
func FileDiffs(root string, entries []vcs.DiffEntry) ([]FileDiff, error) {
	out := make([]FileDiff, 0, len(entries))
	for _, e := range entries {
		d, err := fileDiff(root, e)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func fileDiff(root string, e vcs.DiffEntry) (FileDiff, error) {
	name := e.RelativePath
	if name == "" {
		name = e.OriginalPath
		if rel, err := filepath.Rel(root, e.OriginalPath); err == nil && !strings.HasPrefix(rel, "..") {
			name = rel
		}
	}
	name = filepath.ToSlash(name)

	before, err := readLines(e.OriginalPath)
	if err != nil {
		return FileDiff{}, err
	}
	after, err := readLines(e.SnapshotPath)
	if err != nil {
		return FileDiff{}, err
	}

	status := "modified"
	switch {
	case e.OriginalPath == "":
		status = "added"
	case e.SnapshotPath == "":
		status = "deleted"
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		return FileDiff{}, fmt.Errorf("diffing %s: %w", name, err)
	}
	return FileDiff{Path: name, Status: status, Diff: text}, nil
}

// readLines returns the lines of path. An empty path or a missing file
// reads as empty.
func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return difflib.SplitLines(string(b)), nil
}
