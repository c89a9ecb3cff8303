/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package p4cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/buildvcs/finalize"
	"chainguard.dev/buildvcs/perforce"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	out := `... change 12345
... time 1700000000
... user alice
... desc Fix the build
[Related change IDs] 12340, 12345

... change 12340
... ... otherOpen0 bob@ws
`
	want := []perforce.Record{{
		"change": "12345",
		"time":   "1700000000",
		"user":   "alice",
		"desc":   "Fix the build\n[Related change IDs] 12340, 12345",
	}, {
		"change":     "12340",
		"otherOpen0": "bob@ws",
	}}
	if diff := cmp.Diff(want, Parse(out)); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
}

func TestParseBlankLinesInValue(t *testing.T) {
	out := "... change 701\n... user alice\n... desc Fix the build\n\n" +
		"[Related change IDs] 701, 702\n\n... status pending\n\n" +
		"... change 702\n... desc Other\n\n"
	want := []perforce.Record{{
		"change": "701",
		"user":   "alice",
		"desc":   "Fix the build\n\n[Related change IDs] 701, 702",
		"status": "pending",
	}, {
		"change": "702",
		"desc":   "Other",
	}}
	if diff := cmp.Diff(want, Parse(out)); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
}

func TestParseFormWithBlankDescription(t *testing.T) {
	out := "... Change new\n... Client ci\n... Description <enter description here>\n\n" +
		"... Files0 //depot/proj/a.c\n... Files1 //depot/proj/b.c\n"
	got := Parse(out)
	if len(got) != 1 {
		t.Fatalf("Parse = %d records, want 1: %v", len(got), got)
	}
	if diff := cmp.Diff([]string{"//depot/proj/a.c", "//depot/proj/b.c"}, got[0].List("Files")); diff != "" {
		t.Errorf("Files (-want +got):\n%s", diff)
	}
}

// fakeBinary writes an executable that prints the tagged description of
// the change named by its last argument.
func fakeBinary(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
for a; do last=$a; done
case "$last" in
-s) exit 0 ;;
701|702)
	printf '... change %s\n... user alice\n... desc Fix the build\n\n[Related change IDs] 701, 702\n\n... status pending\n' "$last"
	;;
esac
`
	path := filepath.Join(t.TempDir(), "p4")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRelatedChangesAcrossBlankLines(t *testing.T) {
	ctx := context.Background()
	c := New(WithBinary(fakeBinary(t)))

	got, err := perforce.RelatedChanges(ctx, c, "701")
	if err != nil {
		t.Fatalf("RelatedChanges: %v", err)
	}
	if diff := cmp.Diff([]string{"701", "702"}, got); diff != "" {
		t.Errorf("RelatedChanges (-want +got):\n%s", diff)
	}

	out, list, err := perforce.ValidateRelated(ctx, c, "701")
	if err != nil {
		t.Fatalf("ValidateRelated: %v", err)
	}
	if !out.Stopped() || out.Code() != finalize.CodeSuccess {
		t.Errorf("ValidateRelated outcome = %v, want a successful stop for a non-master change", out)
	}
	if diff := cmp.Diff([]string{"701", "702"}, list); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	if got := Parse(""); got != nil {
		t.Errorf("Parse(\"\") = %v, want nil", got)
	}
}

func TestRenderForm(t *testing.T) {
	form := perforce.Record{
		"Client":      "ci-build",
		"Root":        "/ws",
		"View0":       "//depot/proj/... //ci-build/...",
		"View1":       "//depot/lib/... //ci-build/lib/...",
		"Description": "first line\nsecond line",
	}
	want := "Client:\tci-build\n\n" +
		"Description:\n\tfirst line\n\tsecond line\n\n" +
		"Root:\t/ws\n\n" +
		"View:\n\t//depot/proj/... //ci-build/...\n\t//depot/lib/... //ci-build/lib/...\n\n"
	if diff := cmp.Diff(want, RenderForm(form)); diff != "" {
		t.Errorf("RenderForm (-want +got):\n%s", diff)
	}
}

func TestGlobalArgs(t *testing.T) {
	c := New()
	c.creds = perforce.Credentials{Port: "ssl:p4:1666", User: "ci", Password: "secret"}
	if got := strings.Join(c.globalArgs(), " "); got != "-ztag -p ssl:p4:1666 -u ci -P secret" {
		t.Errorf("globalArgs = %q", got)
	}
	c.SetClient("ci-build")
	if got := c.globalArgs(); got[len(got)-1] != "ci-build" {
		t.Errorf("globalArgs = %v, want workspace last", got)
	}
}

func TestDisconnectTwice(t *testing.T) {
	c := New()
	c.connected = true
	if w, err := c.Disconnect(context.Background()); err != nil || len(w) != 0 {
		t.Fatalf("first Disconnect = %v, %v", w, err)
	}
	w, err := c.Disconnect(context.Background())
	if err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if diff := cmp.Diff([]string{"Not connected"}, w); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

func TestRunMissingBinary(t *testing.T) {
	c := New(WithBinary("/nonexistent/p4"))
	if _, err := c.Run(context.Background(), "info"); err == nil {
		t.Fatal("Run succeeded with a missing binary")
	}
}
