/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package report writes the repository artifacts produced around a build.

# Artifacts

  - REPOSITORY_STATE.txt: the repository status text followed by a listing
    of every file in the workspace.
  - REPOSITORY_DIFFERENCE.txt: the textual difference between the workspace
    and the repository, written only when it is non-empty.
  - REPOSITORY_FILE_DIFF.json: one unified diff per file changed during the
    build, computed from the snapshot entries returned by a revert.

# Usage

	a := report.New(artifactsDir)
	if _, err := a.WriteState(prepared); err != nil {
		return err
	}
	entries, err := driver.Revert(ctx)
	...
	if _, err := a.WriteFileDiffs(prepared.Root, entries); err != nil {
		return err
	}
*/
package report
