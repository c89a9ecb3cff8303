/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package perforce

import (
	"slices"
	"strings"

	"chainguard.dev/buildvcs/vcs"
)

// DepotMapping binds a depot location to a path under the workspace root.
type DepotMapping struct {
	DepotPath   string
	LocalSuffix string
	// Changelist pins the location; empty means the latest submitted one.
	Changelist string
}

// ParseMappings turns the legacy single project depot path, or the
// explicit mapping list, into DepotMappings. The two are mutually
// exclusive.
func ParseMappings(projectDepotPath string, mappings []string) ([]DepotMapping, error) {
	entries := vcs.UnifyArgumentList(mappings...)
	if projectDepotPath != "" {
		if len(entries) > 0 {
			return nil, vcs.Configurationf("Both 'P4_PATH' and 'P4_MAPPINGS' cannot be processed simultaneously")
		}
		entries = []string{projectDepotPath + " /..."}
	}

	out := make([]DepotMapping, 0, len(entries))
	for _, e := range entries {
		fields := strings.Fields(e)
		if len(fields) != 2 || !strings.HasPrefix(fields[0], "//") || !strings.HasPrefix(fields[1], "/") {
			return nil, vcs.Configurationf("malformed mapping %q, expected '//depot/path/... /local/path/...'", e)
		}
		out = append(out, DepotMapping{DepotPath: fields[0], LocalSuffix: fields[1]})
	}
	return out, nil
}

// ResolveDepots applies sync selectors to mappings and returns the
// locations to download, in order. A single bare changelist pins every
// mapping. Otherwise every selector is "<depot path>@<changelist>": it
// replaces any earlier entry for the same path and is appended, and
// mappings no selector names stay unpinned.
func ResolveDepots(mappings []DepotMapping, selectors []string) ([]DepotMapping, error) {
	sel := vcs.UnifyArgumentList(selectors...)
	depots := make([]DepotMapping, len(mappings))
	copy(depots, mappings)

	if len(sel) == 1 && isNumber(sel[0]) {
		for i := range depots {
			depots[i].Changelist = sel[0]
		}
		return depots, nil
	}

	for i := range depots {
		depots[i].Changelist = ""
	}
	for _, s := range sel {
		at := strings.LastIndex(s, "@")
		if at <= 0 || at == len(s)-1 {
			return nil, vcs.Configurationf("malformed sync changelist %q, expected '<depot path>@<changelist>'", s)
		}
		path, cl := s[:at], s[at+1:]
		var suffix string
		depots = slices.DeleteFunc(depots, func(d DepotMapping) bool {
			if d.DepotPath == path {
				suffix = d.LocalSuffix
				return true
			}
			return false
		})
		depots = append(depots, DepotMapping{DepotPath: path, LocalSuffix: suffix, Changelist: cl})
	}
	return depots, nil
}

// BuildView returns the client view lines for workspace client, preserving
// mapping order.
func BuildView(client string, mappings []DepotMapping) []string {
	view := make([]string, 0, len(mappings))
	for _, m := range mappings {
		view = append(view, m.DepotPath+" //"+client+m.LocalSuffix)
	}
	return view
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
