/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package review holds the code-review system clients a build may report
// to. Each subpackage implements vcs.Review for one system:
//   - swarm talks to Helix Swarm reviews of Perforce changes.
//   - githubreview talks to GitHub pull requests.
package review
