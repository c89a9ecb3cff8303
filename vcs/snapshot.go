/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SnapshotDir is the directory, relative to the workspace root, that holds
// copies of locally changed files taken before a revert.
const SnapshotDir = "new_temp"

// FileAction is the pending action a file is open for.
type FileAction string

const (
	ActionAdd        FileAction = "add"
	ActionEdit       FileAction = "edit"
	ActionDelete     FileAction = "delete"
	ActionBranch     FileAction = "branch"
	ActionIntegrate  FileAction = "integrate"
	ActionMoveAdd    FileAction = "move/add"
	ActionMoveDelete FileAction = "move/delete"
)

// DiffEntry pairs a changed file's snapshot with the on-disk path to compare
// it against. An empty string means the path is absent:
//   - delete keeps only OriginalPath;
//   - add and branch have no OriginalPath, they are never compared with
//     content that happens to exist on disk;
//   - every other action keeps all three.
type DiffEntry struct {
	RelativePath string `json:"relative_path,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
	OriginalPath string `json:"original_path,omitempty"`
}

// Classify builds the DiffEntry for a file open for action. relative is the
// workspace-relative path, root the workspace root. The snapshot location
// is derived from SnapshotDir.
func Classify(action FileAction, root, relative string) DiffEntry {
	original := filepath.Join(root, relative)
	switch action {
	case ActionDelete:
		return DiffEntry{OriginalPath: original}
	case ActionAdd, ActionBranch:
		return DiffEntry{
			RelativePath: relative,
			SnapshotPath: filepath.Join(root, SnapshotDir, relative),
		}
	default:
		return DiffEntry{
			RelativePath: relative,
			SnapshotPath: filepath.Join(root, SnapshotDir, relative),
			OriginalPath: original,
		}
	}
}

// CopyAside copies root/relative to its snapshot location, creating missing
// parent directories.
func CopyAside(root, relative string) error {
	src := filepath.Join(root, relative)
	dst := filepath.Join(root, SnapshotDir, relative)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", relative, err)
	}
	return out.Close()
}
