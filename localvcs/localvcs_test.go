/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package localvcs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/localvcs"
	"chainguard.dev/buildvcs/vcs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewMainRequiresSource(t *testing.T) {
	_, err := localvcs.NewMain(localvcs.Config{})
	require.True(t, vcs.IsConfiguration(err), "NewMain = %v", err)
}

func TestPrepareCopies(t *testing.T) {
	ctx := context.Background()
	source := seed(t)
	root := filepath.Join(t.TempDir(), "ws")

	m, err := localvcs.NewMain(localvcs.Config{Source: source, Root: root})
	require.NoError(t, err)

	out, p, err := m.Prepare(ctx)
	require.NoError(t, err)
	require.False(t, out.Stopped())
	require.Equal(t, root, p.Root)
	require.Equal(t, "Source directory: "+source+"\n\n", p.Status)

	got, err := os.ReadFile(filepath.Join(root, "src", "main.c"))
	require.NoError(t, err)
	require.Equal(t, "int main;", string(got))

	target, err := os.Readlink(filepath.Join(root, "link"))
	require.NoError(t, err)
	require.Equal(t, "src/main.c", target)
}

func TestPrepareInPlace(t *testing.T) {
	source := seed(t)
	m, err := localvcs.NewMain(localvcs.Config{Source: source, ForceClean: true})
	require.NoError(t, err)

	_, p, err := m.Prepare(context.Background())
	require.NoError(t, err)
	require.Equal(t, source, p.Root)
	require.Equal(t, "Sources used in place: "+source+"\n\n", p.Status)

	entries, err := m.Revert(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, m.Teardown(), "in place sources must never be removed")
}

func TestPrepareRefusesNonEmptyRoot(t *testing.T) {
	ctx := context.Background()
	source := seed(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "leftover"), "x")

	m, err := localvcs.NewMain(localvcs.Config{Source: source, Root: root})
	require.NoError(t, err)
	_, _, err = m.Prepare(ctx)
	require.True(t, vcs.IsConfiguration(err), "Prepare = %v", err)

	forced, err := localvcs.NewMain(localvcs.Config{Source: source, Root: root, ForceClean: true})
	require.NoError(t, err)
	_, _, err = forced.Prepare(ctx)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "leftover"))
	require.True(t, os.IsNotExist(err), "leftover survived force clean: %v", err)
}

func TestPrepareMissingSource(t *testing.T) {
	m, err := localvcs.NewMain(localvcs.Config{
		Source: filepath.Join(t.TempDir(), "missing"),
		Root:   filepath.Join(t.TempDir(), "ws"),
	})
	require.NoError(t, err)
	_, _, err = m.Prepare(context.Background())
	require.True(t, vcs.IsConfiguration(err), "Prepare = %v", err)
}

func TestRevertRestoresCopy(t *testing.T) {
	ctx := context.Background()
	source := seed(t)
	root := filepath.Join(t.TempDir(), "ws")

	m, err := localvcs.NewMain(localvcs.Config{Source: source, Root: root})
	require.NoError(t, err)
	_, _, err = m.Prepare(ctx)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "src", "main.c"), "int main(void);")
	writeFile(t, filepath.Join(root, "out", "build.log"), "ok")
	require.NoError(t, os.Remove(filepath.Join(root, "README")))

	got, err := m.Revert(ctx)
	require.NoError(t, err)

	want := []vcs.DiffEntry{
		vcs.Classify(vcs.ActionDelete, root, "README"),
		vcs.Classify(vcs.ActionAdd, root, filepath.Join("out", "build.log")),
		vcs.Classify(vcs.ActionEdit, root, filepath.Join("src", "main.c")),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Revert (-want +got):\n%s", diff)
	}

	require.Equal(t, "int main(void);", readFile(t, filepath.Join(root, vcs.SnapshotDir, "src", "main.c")))
	require.Equal(t, "ok", readFile(t, filepath.Join(root, vcs.SnapshotDir, "out", "build.log")))
	require.Equal(t, "int main;", readFile(t, filepath.Join(root, "src", "main.c")))
	require.Equal(t, "read me", readFile(t, filepath.Join(root, "README")))
	_, err = os.Stat(filepath.Join(root, "out", "build.log"))
	require.True(t, os.IsNotExist(err), "added file survived the revert: %v", err)

	again, err := m.Revert(ctx)
	require.NoError(t, err)
	require.Empty(t, again, "snapshots must not count as changes")
}

func TestTeardownRemovesCopy(t *testing.T) {
	ctx := context.Background()
	source := seed(t)
	root := filepath.Join(t.TempDir(), "ws")

	m, err := localvcs.NewMain(localvcs.Config{Source: source, Root: root, ForceClean: true})
	require.NoError(t, err)
	_, _, err = m.Prepare(ctx)
	require.NoError(t, err)

	_, err = finalize.RunAll(ctx, m.Teardown())
	require.NoError(t, err)
	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err), "copy survived teardown: %v", err)
	_, err = os.Stat(filepath.Join(source, "README"))
	require.NoError(t, err, "teardown must not touch the sources")
}

func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README"), "read me")
	writeFile(t, filepath.Join(dir, "src", "main.c"), "int main;")
	require.NoError(t, os.Symlink("src/main.c", filepath.Join(dir, "link")))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
