/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce_test

import (
	"testing"

	"chainguard.dev/buildvcs/perforce"
	"chainguard.dev/buildvcs/vcs"
	"github.com/google/go-cmp/cmp"
)

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		project string
		in      []string
		want    []perforce.DepotMapping
		wantErr bool
	}{{
		name:    "project depot path",
		project: "//depot/proj/...",
		want:    []perforce.DepotMapping{{DepotPath: "//depot/proj/...", LocalSuffix: "/..."}},
	}, {
		name: "explicit mappings",
		in:   []string{"//depot/proj/... /..., //depot/lib/... /lib/..."},
		want: []perforce.DepotMapping{
			{DepotPath: "//depot/proj/...", LocalSuffix: "/..."},
			{DepotPath: "//depot/lib/...", LocalSuffix: "/lib/..."},
		},
	}, {
		name:    "mutually exclusive",
		project: "//depot/proj/...",
		in:      []string{"//depot/lib/... /lib/..."},
		wantErr: true,
	}, {
		name:    "missing local path",
		in:      []string{"//depot/proj/..."},
		wantErr: true,
	}, {
		name:    "local path without root slash",
		in:      []string{"//depot/proj/... proj/..."},
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := perforce.ParseMappings(tt.project, tt.in)
			if tt.wantErr {
				if !vcs.IsConfiguration(err) {
					t.Fatalf("ParseMappings error = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMappings: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseMappings (-want +got):\n%s", diff)
			}
		})
	}
}

var twoMappings = []perforce.DepotMapping{
	{DepotPath: "//depot/proj/...", LocalSuffix: "/..."},
	{DepotPath: "//depot/lib/...", LocalSuffix: "/lib/..."},
}

func TestResolveDepotsBroadcast(t *testing.T) {
	for _, sel := range [][]string{{"12345"}, {" 12345 "}, {"12345,"}} {
		got, err := perforce.ResolveDepots(twoMappings, sel)
		if err != nil {
			t.Fatalf("ResolveDepots(%q): %v", sel, err)
		}
		if len(got) != len(twoMappings) {
			t.Fatalf("got %d depots, want %d", len(got), len(twoMappings))
		}
		for _, d := range got {
			if d.Changelist != "12345" {
				t.Errorf("%s pinned to %q, want 12345", d.DepotPath, d.Changelist)
			}
		}
	}
}

func TestResolveDepotsLastWriteWins(t *testing.T) {
	got, err := perforce.ResolveDepots(twoMappings, []string{
		"//depot/proj/...@10",
		"//depot/proj/...@20, //depot/other/...@5",
	})
	if err != nil {
		t.Fatalf("ResolveDepots: %v", err)
	}
	want := []perforce.DepotMapping{
		{DepotPath: "//depot/lib/...", LocalSuffix: "/lib/..."},
		{DepotPath: "//depot/proj/...", LocalSuffix: "/...", Changelist: "20"},
		{DepotPath: "//depot/other/...", Changelist: "5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveDepots (-want +got):\n%s", diff)
	}

	distinct := map[string]bool{}
	for _, d := range got {
		distinct[d.DepotPath] = true
	}
	if len(got) != len(distinct) {
		t.Errorf("got %d depots for %d distinct paths", len(got), len(distinct))
	}
}

func TestResolveDepotsNoSelectors(t *testing.T) {
	got, err := perforce.ResolveDepots(twoMappings, nil)
	if err != nil {
		t.Fatalf("ResolveDepots: %v", err)
	}
	if diff := cmp.Diff(twoMappings, got); diff != "" {
		t.Errorf("ResolveDepots (-want +got):\n%s", diff)
	}
}

func TestResolveDepotsMalformed(t *testing.T) {
	for _, sel := range [][]string{{"12345", "678"}, {"//depot/proj/..."}, {"//depot/proj/...@"}} {
		if _, err := perforce.ResolveDepots(twoMappings, sel); !vcs.IsConfiguration(err) {
			t.Errorf("ResolveDepots(%q) error = %v, want configuration error", sel, err)
		}
	}
}

func TestBuildView(t *testing.T) {
	want := []string{
		"//depot/proj/... //ci-build/...",
		"//depot/lib/... //ci-build/lib/...",
	}
	if diff := cmp.Diff(want, perforce.BuildView("ci-build", twoMappings)); diff != "" {
		t.Errorf("BuildView (-want +got):\n%s", diff)
	}
}
