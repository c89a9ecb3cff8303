/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/buildvcs/vcs"
	"github.com/google/go-cmp/cmp"
)

func TestUnifyArgumentList(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "empty", in: nil, want: nil},
		{name: "comma separated", in: []string{"700, 701"}, want: []string{"700", "701"}},
		{name: "repeated", in: []string{"700", "701"}, want: []string{"700", "701"}},
		{name: "quoted", in: []string{`"//depot/a/... /a/..., //depot/b/... /b/..."`},
			want: []string{"//depot/a/... /a/...", "//depot/b/... /b/..."}},
		{name: "drops empty", in: []string{"", " , 5,,"}, want: []string{"5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vcs.UnifyArgumentList(tt.in...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("UnifyArgumentList (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReclassifyOutOfView(t *testing.T) {
	backend := &vcs.BackendError{
		Op:      "sync",
		Message: "//depot/other/...@5 - file(s) not in client view.",
	}
	err := vcs.Reclassify(backend, vcs.Reclassifications)
	if !vcs.IsConfiguration(err) {
		t.Fatalf("Reclassify = %T, want *vcs.ConfigurationError", err)
	}
	if !strings.Contains(err.Error(), "Possible reasons") {
		t.Errorf("error %q is missing the hint", err)
	}
	var be *vcs.BackendError
	if !errors.As(err, &be) {
		t.Error("reclassified error no longer wraps the backend error")
	}
}

func TestReclassifyLeavesOtherErrors(t *testing.T) {
	backend := &vcs.BackendError{Op: "sync", Message: "Connect to server failed"}
	if got := vcs.Reclassify(backend, vcs.Reclassifications); got != backend {
		t.Errorf("Reclassify = %v, want the original error", got)
	}
	if got := vcs.Reclassify(nil, vcs.Reclassifications); got != nil {
		t.Errorf("Reclassify(nil) = %v", got)
	}
}

func TestReclassifyCustomTable(t *testing.T) {
	table := []vcs.Reclassification{{Pattern: "no such host", Hint: "check P4PORT"}}
	err := vcs.Reclassify(fmt.Errorf("dial: %w", errors.New("no such host")), table)
	if !vcs.IsConfiguration(err) || !strings.HasPrefix(err.Error(), "check P4PORT") {
		t.Errorf("Reclassify = %v", err)
	}
}

func TestBackendErrorWarnings(t *testing.T) {
	err := &vcs.BackendError{Op: "reconcile", Warnings: []string{"//... - no file(s) to reconcile."}}
	if !vcs.HasText(err, "no file(s) to reconcile") {
		t.Error("HasText did not see the warning")
	}
	if !vcs.HasText(fmt.Errorf("wrapped: %w", err), "no file(s) to reconcile") {
		t.Error("HasText did not unwrap")
	}
	if vcs.HasText(nil, "x") {
		t.Error("HasText(nil) = true")
	}
}

func TestClassify(t *testing.T) {
	root := filepath.FromSlash("/ws")
	for _, action := range []vcs.FileAction{vcs.ActionAdd, vcs.ActionBranch} {
		got := vcs.Classify(action, root, "src/new.c")
		if got.OriginalPath != "" {
			t.Errorf("%s: OriginalPath = %q, want none", action, got.OriginalPath)
		}
		if got.SnapshotPath == "" || got.RelativePath != "src/new.c" {
			t.Errorf("%s: got %+v, want snapshot and relative paths", action, got)
		}
	}

	del := vcs.Classify(vcs.ActionDelete, root, "src/gone.c")
	if del.SnapshotPath != "" || del.RelativePath != "" {
		t.Errorf("delete: got %+v, want only the original path", del)
	}
	if del.OriginalPath != filepath.Join(root, "src/gone.c") {
		t.Errorf("delete: OriginalPath = %q", del.OriginalPath)
	}

	edit := vcs.Classify(vcs.ActionEdit, root, "src/main.c")
	want := vcs.DiffEntry{
		RelativePath: "src/main.c",
		SnapshotPath: filepath.Join(root, vcs.SnapshotDir, "src/main.c"),
		OriginalPath: filepath.Join(root, "src/main.c"),
	}
	if diff := cmp.Diff(want, edit); diff != "" {
		t.Errorf("edit (-want +got):\n%s", diff)
	}
}

func TestCopyAsideCreatesParents(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "f.txt"), []byte("content"), 0o444); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := vcs.CopyAside(root, filepath.Join("a", "b", "f.txt")); err != nil {
		t.Fatalf("CopyAside: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, vcs.SnapshotDir, "a", "b", "f.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("snapshot = %q, want %q", got, "content")
	}
}

func TestPreparedEnv(t *testing.T) {
	p := &vcs.Prepared{Depots: []vcs.ResolvedDepot{
		{Path: "//depot/a/...", Revision: "12345"},
		{Path: "//depot/b/...", Revision: "12"},
	}}
	want := []string{"SYNC_CL_0=12345", "SYNC_CL_1=12"}
	if diff := cmp.Diff(want, p.Env()); diff != "" {
		t.Errorf("Env (-want +got):\n%s", diff)
	}
}

func TestStatus(t *testing.T) {
	var s vcs.Status
	s.Printf("Perforce server: %s\n\n", "p4:1666")
	s.Line("Workspace: ci")
	if got, want := s.String(), "Perforce server: p4:1666\n\nWorkspace: ci\n"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}
