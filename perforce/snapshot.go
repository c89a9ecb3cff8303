/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"context"
	"path/filepath"
	"strings"

	"chainguard.dev/buildvcs/vcs"
	"github.com/chainguard-dev/clog"
)

// Snapshotter copies every opened file aside and reverts the workspace.
type Snapshotter struct {
	Client Client
	Root   string
	Index  *LocalToDepotIndex
}

// SnapshotAndRevert snapshots the files opened in the workspace into
// vcs.SnapshotDir and reverts them. Nothing is touched when no shelved
// change was applied.
func (s *Snapshotter) SnapshotAndRevert(ctx context.Context, shelves []string) ([]vcs.DiffEntry, error) {
	if len(shelves) == 0 {
		clog.FromContext(ctx).Info("No shelved changes applied, nothing to revert")
		return nil, nil
	}

	opened, err := s.Client.Run(ctx, "opened")
	if err != nil && !vcs.HasText(err, "not opened") {
		return nil, err
	}

	var entries []vcs.DiffEntry
	for _, f := range opened {
		action := vcs.FileAction(f["action"])
		if action == vcs.ActionMoveDelete {
			continue
		}
		relative := filepath.FromSlash(strings.TrimPrefix(f["clientFile"], "//"+f["client"]+"/"))
		if action != vcs.ActionDelete {
			if err := vcs.CopyAside(s.Root, relative); err != nil {
				return nil, err
			}
		}

		entry := vcs.Classify(action, s.Root, relative)
		if action == vcs.ActionMoveAdd && s.Index != nil {
			if local, ok := s.Index.LocalFor(f["movedFile"]); ok {
				entry.OriginalPath = local
			}
		}
		entries = append(entries, entry)
	}

	reverted, err := s.Client.Run(ctx, "revert", "//...")
	if err != nil {
		return nil, err
	}
	logFiles(ctx, reverted)
	return entries, nil
}
