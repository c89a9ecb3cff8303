/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package vcs holds the contracts shared by every repository driver: the
// capability interfaces a driver may implement, the data passed between the
// preparation steps and their consumers, and the error taxonomy.
//
// A driver is composed from the capabilities its mode needs rather than
// from a type hierarchy. A main-build driver is Connectable and a
// WorkspacePreparer; a poll driver is Connectable and a Poller; a submit
// driver is Connectable and a Submitter. The concrete driver is selected
// once, from configuration, when the process starts.
package vcs
