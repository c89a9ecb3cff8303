/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package vcs

import "strings"

// UnifyArgumentList flattens repeated and comma-separated option values into
// one list. Surrounding quotes and whitespace are stripped and empty items
// dropped, so "a, b" and ["a", "b"] yield the same result.
func UnifyArgumentList(values ...string) []string {
	var out []string
	for _, v := range values {
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
