/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package perforce prepares, polls and submits against a Perforce server.

# Overview

All server access goes through the Client interface, which runs one named
operation and returns its tagged output as Records. The p4cli package
provides a Client backed by the p4 command line; the testing package
provides an in-memory fake.

A main build goes through these steps, each a named block in the log:

  - Connecting: bind credentials and open the session.
  - Creating workspace: resolve shelved changes, optionally destroy a
    leftover workspace, then create a fresh one with the configured view.
  - Downloading: pin every location to a changelist and force-sync it.
  - Unshelving: apply each shelved change, in numeric order.
  - Checking diff: record the textual difference against the depot.

Teardown runs through a finalize.Runner so every step is attempted even
when an earlier one failed:

	main, err := perforce.NewMain(client, cfg, perforce.WithArtifacts(a))
	if err != nil {
		return err
	}
	out, prepared, err := main.Prepare(ctx)
	...
	res, err := finalize.RunAll(ctx, main.Teardown())

# Mappings

A mapping is "<depot path> <local path>", where the local path starts at
the workspace root with a single slash:

	//depot/proj/... /...
	//depot/lib/... /third_party/lib/...

A sync selector is either one bare changelist number, applied to every
mapping, or a list of "<depot path>@<changelist>" entries.
*/
package perforce
