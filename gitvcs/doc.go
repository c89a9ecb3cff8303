/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitvcs implements the repository drivers for git remotes:
//   - Main clones a branch into the project root, optionally pinned to a
//     commit, and can snapshot and reset local modifications.
//   - Poll lists commits pushed since a reference without a working tree.
//   - Submit commits local modifications of an existing clone and pushes them.
//
// Remotes are reached through go-git. When a token source is configured the
// token is sent as the password of HTTP basic auth, which is how GitHub and
// most hosted forges accept access tokens.
package gitvcs
